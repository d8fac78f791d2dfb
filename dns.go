package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/miekg/dns"
)

func StartDNSServer(port int) error {
	log.Printf("[DNS] Starting DNS server on port %d", port)
	zone := kellyDomain() + "."
	dns.HandleFunc(zone, handleDNS)
	dns.HandleFunc(".", handleDNS)

	server := &dns.Server{
		Addr: fmt.Sprintf(":%d", port),
		Net:  "udp",
	}

	log.Printf("[DNS] DNS server listening on :%d", port)
	return server.ListenAndServe()
}

func handleDNS(w dns.ResponseWriter, r *dns.Msg) {
	if !rateLimitAllow(w.RemoteAddr().String()) {
		return
	}

	if len(r.Question) == 0 {
		return
	}

	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeTXT {
			continue
		}

		name := strings.TrimSuffix(strings.TrimSuffix(q.Name, "."), "."+kellyDomain())
		question := strings.ReplaceAll(name, "-", " ")

		config := getServiceConfig("DNS")
		log.Printf("[DNS] Using model: %s (max_tokens=%d, temp=%.1f)", config.Model, config.MaxTokens, config.Temperature)

		// Stream the poem with a hard deadline; DNS clients will not wait.
		// LLMWithRouter closes ch, so the error travels on its own buffered
		// channel rather than being sent into the closed stream.
		ch := make(chan string)
		errCh := make(chan error, 1)

		go func() {
			messages := buildKellyMessages(nil, question, "dns")
			params := &RouterParams{
				MaxTokens:   config.MaxTokens,
				Temperature: config.Temperature,
			}
			_, err := LLMWithRouter(messages, config.Model, params, ch)
			errCh <- err
		}()

		var response strings.Builder
		deadline := time.After(4 * time.Second) // Safe middle ground for DNS clients
		channelClosed := false

		for {
			select {
			case chunk, ok := <-ch:
				if !ok {
					channelClosed = true
					goto respond
				}
				response.WriteString(chunk)
				if response.Len() >= 500 {
					goto respond
				}
			case <-deadline:
				if response.Len() == 0 {
					response.WriteString("Kelly's verses timed out")
				} else if !channelClosed {
					response.WriteString("... (incomplete)")
				}
				goto respond
			}
		}

	respond:
		if channelClosed && response.Len() == 0 {
			// Generation failed before producing any output; the error
			// arrives right after the stream is closed
			if err := <-errCh; err != nil {
				log.Printf("[DNS] LLM error: %v", err)
			}
			response.WriteString("Kelly's verses are resting; please try again shortly.")
		}
		finalResponse := response.String()
		if len(finalResponse) > 500 {
			finalResponse = finalResponse[:497] + "..."
		} else if len(finalResponse) == 500 && !channelClosed {
			// We hit the exact limit but stream is still going
			finalResponse = finalResponse[:497] + "..."
		}

		m.Answer = append(m.Answer, poemTXTRecord(q.Name, finalResponse))
	}

	w.WriteMsg(m)
}

// poemTXTRecord splits a response into 255-byte strings, the TXT record limit.
func poemTXTRecord(name, response string) *dns.TXT {
	var txtStrings []string
	for i := 0; i < len(response); i += 255 {
		end := i + 255
		if end > len(response) {
			end = len(response)
		}
		txtStrings = append(txtStrings, response[i:end])
	}

	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    60,
		},
		Txt: txtStrings,
	}
}
