package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// StartSSHServer runs an anonymous SSH chat: connect, type a question, get a
// poem back. No accounts, no shell.
func StartSSHServer(port int) error {
	config := &ssh.ServerConfig{
		NoClientAuth: true,
	}

	hostKey, err := loadOrGenerateHostKey()
	if err != nil {
		return fmt.Errorf("ssh host key: %w", err)
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("ssh listen: %w", err)
	}
	log.Printf("[SSH] SSH server listening on :%d", port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("[SSH] Accept error: %v", err)
			continue
		}
		go handleSSHConnection(conn, config)
	}
}

// loadOrGenerateHostKey reads the key at SSH_HOST_KEY, falling back to an
// ephemeral ed25519 key (clients will see a changed-host-key warning across
// restarts).
func loadOrGenerateHostKey() (ssh.Signer, error) {
	if path := os.Getenv("SSH_HOST_KEY"); path != "" {
		pemBytes, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return ssh.ParsePrivateKey(pemBytes)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	log.Printf("[SSH] No SSH_HOST_KEY set, using ephemeral host key")
	return ssh.NewSignerFromKey(priv)
}

func handleSSHConnection(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	if !rateLimitAllow(conn.RemoteAddr().String()) {
		return
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go acceptSessionRequests(requests)
		go runChatSession(channel)
	}
}

// acceptSessionRequests acknowledges pty/shell/env so standard clients get an
// interactive session; exec payloads are rejected.
func acceptSessionRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req", "shell", "env", "window-change":
			if req.WantReply {
				req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func runChatSession(channel ssh.Channel) {
	defer channel.Close()

	config := getServiceConfig("SSH")
	term := newLineReader(channel)

	fmt.Fprint(channel, "Kelly - The AI Scientist\r\n")
	fmt.Fprint(channel, "She answers only in verse. Type a question, or 'exit' to leave.\r\n\r\n")

	var history []map[string]string

	for {
		fmt.Fprint(channel, "you> ")
		question, err := term.ReadLine()
		if err != nil {
			return
		}
		question = strings.TrimSpace(question)
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			fmt.Fprint(channel, "Kelly bids you farewell in iambs.\r\n")
			return
		}

		messages := buildKellyMessages(history, question, "plain")
		params := &RouterParams{
			MaxTokens:   config.MaxTokens,
			Temperature: config.Temperature,
		}

		ch := make(chan string)
		done := make(chan *LLMResponse, 1)
		go func() {
			resp, err := LLMWithRouter(messages, config.Model, params, ch)
			if err != nil {
				log.Printf("[SSH] LLM error: %v", err)
			}
			done <- resp
		}()

		fmt.Fprint(channel, "\r\nkelly>\r\n")
		var poem strings.Builder
		for chunk := range ch {
			poem.WriteString(chunk)
			// SSH terminals need CRLF
			fmt.Fprint(channel, strings.ReplaceAll(chunk, "\n", "\r\n"))
		}
		<-done
		fmt.Fprint(channel, "\r\n\r\n")

		if poem.Len() == 0 {
			fmt.Fprint(channel, "Kelly's verses are resting; please try again shortly.\r\n\r\n")
			continue
		}

		history = append(history,
			map[string]string{"role": "user", "content": question},
			map[string]string{"role": "assistant", "content": poem.String()},
		)
	}
}

// lineReader reads a line at a time, echoing input so raw-mode clients see
// what they type.
type lineReader struct {
	channel ssh.Channel
	buf     []byte
}

func newLineReader(channel ssh.Channel) *lineReader {
	return &lineReader{channel: channel}
}

func (r *lineReader) ReadLine() (string, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		n, err := r.channel.Read(one)
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		c := one[0]
		switch c {
		case '\r', '\n':
			fmt.Fprint(r.channel, "\r\n")
			return string(line), nil
		case 0x7f, 0x08: // backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(r.channel, "\b \b")
			}
		case 0x03, 0x04: // ctrl-c, ctrl-d
			return "", fmt.Errorf("session interrupted")
		default:
			if c >= 0x20 {
				line = append(line, c)
				r.channel.Write(one)
			}
		}
	}
}
