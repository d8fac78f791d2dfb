package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// RequestTelemetry holds telemetry data for a request
type RequestTelemetry struct {
	RequestID       string
	Method          string
	Path            string
	UserAgent       string
	RemoteAddr      string
	Query           string
	InputHash       string
	OutputHash      string
	InputTokens     int
	OutputTokens    int
	Model           string
	FinishReason    string
	ContentFiltered bool
	ResponseType    string
	Status          int
	StartTime       time.Time
	Duration        time.Duration
}

// isBrowserUA checks if the user agent appears to be from a web browser
func isBrowserUA(ua string) bool {
	ua = strings.ToLower(ua)
	browserIndicators := []string{
		"mozilla", "msie", "trident", "edge", "chrome", "safari",
		"firefox", "opera", "webkit", "gecko", "khtml",
	}
	for _, indicator := range browserIndicators {
		if strings.Contains(ua, indicator) {
			return true
		}
	}
	return false
}

const htmlHeader = `<!DOCTYPE html>
<html>
<head>
    <title>Kelly — The AI Scientist</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            background: #f4f4f9;
            color: #222;
            font-family: 'Georgia', serif;
            margin: 2.5rem;
        }
        .page { max-width: 700px; margin: 0 auto; }
        h1 { text-align: center; }
        .tagline { text-align: center; font-style: italic; color: #555; }
        .about {
            border-radius: 10px;
            padding: 1rem;
            margin: 1rem 0;
            background: #ffffff;
            box-shadow: 0 0 5px rgba(0,0,0,0.1);
            font-size: 0.9rem;
            color: #444;
        }
        .about b { color: #3f51b5; }
        .chat { margin: 1.25rem 0; }
        .chat-container {
            border-radius: 10px;
            padding: 1rem;
            margin-bottom: 1rem;
            background: #ffffff;
            box-shadow: 0 0 5px rgba(0,0,0,0.1);
            white-space: pre-line;
        }
        .kelly {
            background-color: #e8eaf6;
            border-left: 4px solid #3f51b5;
        }
        .user {
            background-color: #fff3e0;
            border-left: 4px solid #fb8c00;
        }
        form { margin: 0 auto 3rem; }
        .input-row { display: flex; gap: .5rem; margin-bottom: .5rem; }
        input[type="text"] {
            width: 100%;
            padding: 1rem 1.25rem;
            font-size: 1.05rem;
            font-family: inherit;
            border: 2px solid #3f51b5;
            border-radius: 10px;
            background: #ffffff;
            outline: none;
        }
        input[type="text"]:focus {
            border-color: #303f9f;
            box-shadow: 0 0 0 3px rgba(63, 81, 181, 0.1);
        }
        button {
            padding: 1rem 1.5rem;
            font-size: 1rem;
            font-family: inherit;
            background: #3f51b5;
            color: white;
            border: none;
            border-radius: 10px;
            cursor: pointer;
        }
        button:hover { background: #303f9f; }
        button.secondary { background: #fb8c00; }
        button.secondary:hover { background: #ef6c00; }
        button:disabled { opacity: 0.5; cursor: default; }
        .footnote { text-align: center; color: #777; font-size: 0.85rem; }
        @media (prefers-color-scheme: dark) {
            body { background: #181a1b; color: #e8e6e3; }
            .chat-container, .about, input[type="text"] { background: #23262a; color: #e8e6e3; }
            .kelly { background-color: #22253a; }
            .user { background-color: #2e2519; }
            a { color: #58a6ff; }
        }
    </style>
</head>
<body>
    <div class="page">
    <h1>Kelly — The AI Scientist</h1>
    <p class="tagline">She answers only in verse — skeptical, analytical, and precise.</p>
    <div class="chat">`

const htmlFooterTemplate = `</div>
    <form id="chat-form" onsubmit="sendMessage(event, false); return false;">
        <div class="input-row">
            <input type="text" name="q" id="query-input" placeholder="Ask Kelly a question about AI, e.g. Can AI truly think like a human?" autofocus>
            <button type="submit" id="ask-button">Ask Kelly</button>
            <button type="button" class="secondary" id="regen-button" onclick="sendMessage(event, true)">Regenerate</button>
        </div>
        <textarea name="h" id="history-input" style="display:none">%s</textarea>
    </form>

    <div class="about">
        <b>About Kelly</b><br>
        %s
    </div>

    <p class="footnote">
        Kelly responds only in poems — questioning, analytical, and ever-curious.<br>
        Also available: ssh %s &middot; curl %s/?q=hello &middot; dig @%s "question" TXT<br>
        <a href="#" onclick="document.getElementById('history-input').value=''; document.querySelector('.chat').innerHTML=''; return false;">New Chat</a>
    </p>

    <script>
        function historyMessages() {
            const raw = document.getElementById('history-input').value;
            if (!raw) return [];
            try { return JSON.parse(raw); } catch (e) { return []; }
        }

        function appendBubble(cls, label, text) {
            const chatDiv = document.querySelector('.chat');
            const div = document.createElement('div');
            div.className = 'chat-container ' + cls;
            const b = document.createElement('b');
            b.textContent = label + ':';
            div.appendChild(b);
            div.appendChild(document.createElement('br'));
            div.appendChild(document.createTextNode(text));
            chatDiv.appendChild(div);
            return div;
        }

        async function sendMessage(event, regenerate) {
            event.preventDefault();

            const queryInput = document.getElementById('query-input');
            const messages = historyMessages();
            let query = queryInput.value.trim();

            if (regenerate) {
                // Re-ask the most recent question
                for (let i = messages.length - 1; i >= 0; i--) {
                    if (messages[i].role === 'user') { query = messages[i].content; break; }
                }
                if (!query) return;
            } else {
                if (!query) return;
                appendBubble('user', 'You', query);
            }

            queryInput.disabled = true;
            document.getElementById('ask-button').disabled = true;
            document.getElementById('regen-button').disabled = true;

            const answerDiv = appendBubble('kelly', 'Kelly', 'Kelly is composing her poem...');

            try {
                const params = new URLSearchParams();
                params.append('q', query);
                params.append('h', JSON.stringify(messages));
                if (regenerate) params.append('regenerate', '1');

                const response = await fetch('/', {
                    method: 'POST',
                    headers: {
                        'X-Requested-With': 'XMLHttpRequest',
                        'Content-Type': 'application/x-www-form-urlencoded'
                    },
                    body: params.toString()
                });

                if (!response.ok) throw new Error(await response.text());

                const reader = response.body.getReader();
                const decoder = new TextDecoder();
                let poem = '';
                answerDiv.lastChild.textContent = '';

                while (true) {
                    const {done, value} = await reader.read();
                    if (done) break;
                    poem += decoder.decode(value, {stream: true});
                    answerDiv.lastChild.textContent = poem;
                }
                poem = poem.trim();
                answerDiv.lastChild.textContent = poem;

                if (!regenerate) {
                    messages.push({role: 'user', content: query});
                }
                messages.push({role: 'assistant', content: poem});
                document.getElementById('history-input').value = JSON.stringify(messages);
            } catch (error) {
                answerDiv.lastChild.textContent = 'Error: ' + error.message;
            } finally {
                queryInput.value = '';
                queryInput.disabled = false;
                queryInput.focus();
                document.getElementById('ask-button').disabled = false;
                document.getElementById('regen-button').disabled = false;
            }
        }
    </script>
    </div>
</body>
</html>`

func StartHTTPServer(port int) error {
	http.HandleFunc("/", handleRoot)
	http.HandleFunc("/v1/chat/completions", handleChatCompletions)
	http.HandleFunc("/health", handleHealth)

	// Model management endpoints
	http.HandleFunc("/v1/models", handleListModels)
	http.HandleFunc("/v1/models/", handleGetModel)
	http.HandleFunc("/v1/deployments", handleListDeployments)
	http.HandleFunc("/v1/deployments/", handleGetDeployment)
	http.HandleFunc("/v1/health", handleHealthCheck)
	http.HandleFunc("/about", handleAbout)
	http.HandleFunc("/routing_table", handleRoutingTable)

	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}

func StartHTTPSServer(port int, certFile, keyFile string) error {
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServeTLS(addr, certFile, keyFile, nil)
}

// parseHistory decodes the JSON message history from the h field. Malformed
// history is dropped rather than rejected.
func parseHistory(raw string) []map[string]string {
	if raw == "" {
		return nil
	}
	var messages []map[string]string
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil
	}
	return messages
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	// Initialize telemetry
	telemetry := &RequestTelemetry{
		RequestID:  generateRequestID(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.Header.Get("User-Agent"),
		StartTime:  time.Now(),
	}

	beacon("request_start", map[string]interface{}{
		"request_id":  telemetry.RequestID,
		"method":      telemetry.Method,
		"path":        telemetry.Path,
		"remote_addr": telemetry.RemoteAddr,
		"user_agent":  telemetry.UserAgent,
	})

	w.Header().Set("Access-Control-Allow-Origin", "*")
	if !rateLimitAllow(r.RemoteAddr) {
		beacon("rate_limit_exceeded", map[string]interface{}{
			"remote_addr": r.RemoteAddr,
		})
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var query, rawHistory string
	regenerate := false

	if r.Method == "POST" {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		query = r.FormValue("q")
		rawHistory = r.FormValue("h")
		regenerate = r.FormValue("regenerate") == "1"

		// Limit history size
		if len(rawHistory) > 65536 {
			rawHistory = ""
		}

		if query == "" && !regenerate {
			body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
			if err != nil {
				http.Error(w, "Failed to read request body", http.StatusBadRequest)
				return
			}
			query = strings.TrimSpace(string(body))
		}
	} else {
		query = r.URL.Query().Get("q")
		// Support path-based queries like /can-ai-think
		if query == "" && r.URL.Path != "/" {
			query = strings.ReplaceAll(strings.TrimPrefix(r.URL.Path, "/"), "-", " ")
		}
	}

	history := parseHistory(rawHistory)

	// A regenerate without an explicit question re-asks the last user turn
	if regenerate && query == "" {
		query = lastUserQuestion(history)
	}

	accept := r.Header.Get("Accept")
	userAgent := strings.ToLower(r.Header.Get("User-Agent"))
	wantsJSON := strings.Contains(accept, "application/json")
	isAJAX := r.Header.Get("X-Requested-With") == "XMLHttpRequest"
	wantsHTML := (isBrowserUA(userAgent) || strings.Contains(accept, "text/html")) && !isAJAX
	wantsStream := strings.Contains(accept, "text/event-stream")

	serviceCfg := getServiceConfig("HTTP")
	params := &RouterParams{
		MaxTokens:   serviceCfg.MaxTokens,
		Temperature: serviceCfg.Temperature,
	}

	if query != "" {
		// AJAX path: the page JS streams the poem as plain text
		if isAJAX {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Accel-Buffering", "no")
			flusher := w.(http.Flusher)

			conversationHistory := history
			if regenerate {
				// Drop the last exchange so the question is re-asked rather
				// than stacked on top of the unwanted answer
				conversationHistory = trimLastExchange(history)
			}
			messages := buildKellyMessages(conversationHistory, query, "plain")

			if modelRouter == nil {
				http.Error(w, "model router not initialized", http.StatusServiceUnavailable)
				return
			}

			ch := make(chan string)
			var llmResp *LLMResponse
			done := make(chan struct{})
			go func() {
				defer close(done)
				resp, err := LLMWithRouter(messages, serviceCfg.Model, params, ch)
				if err != nil {
					log.Printf("LLM error: %v", err)
					return
				}
				llmResp = resp
			}()

			wrote := false
			for chunk := range ch {
				fmt.Fprint(w, chunk)
				wrote = true
				flusher.Flush()
			}
			<-done

			if llmResp == nil && !wrote {
				fmt.Fprint(w, "Kelly's verses are resting; please try again shortly.")
			}

			finishTelemetry(telemetry, llmResp, query, "ajax_stream")
			return
		}

		// Browser path: stream the full page with the poem filling in
		if wantsHTML && !wantsJSON {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("X-Accel-Buffering", "no")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; object-src 'none'; base-uri 'none'; style-src 'unsafe-inline'")
			flusher := w.(http.Flusher)

			fmt.Fprint(w, htmlHeader)
			for _, msg := range history {
				switch msg["role"] {
				case "user":
					fmt.Fprintf(w, "<div class=\"chat-container user\"><b>You:</b><br>%s</div>\n", html.EscapeString(msg["content"]))
				case "assistant":
					fmt.Fprintf(w, "<div class=\"chat-container kelly\"><b>Kelly:</b><br>%s</div>\n", html.EscapeString(msg["content"]))
				}
			}
			fmt.Fprintf(w, "<div class=\"chat-container user\"><b>You:</b><br>%s</div>\n", html.EscapeString(query))
			fmt.Fprint(w, "<div class=\"chat-container kelly\"><b>Kelly:</b><br>")
			flusher.Flush()

			if modelRouter == nil {
				fmt.Fprint(w, "Kelly's verses are resting; please try again shortly.</div>\n")
				fmt.Fprintf(w, htmlFooterTemplate, "", aboutHTML(), kellyDomain(), kellyDomain(), kellyDomain())
				return
			}

			messages := buildKellyMessages(history, query, "html")

			ch := make(chan string)
			var llmResp *LLMResponse
			done := make(chan struct{})
			go func() {
				defer close(done)
				resp, err := LLMWithRouter(messages, serviceCfg.Model, params, ch)
				if err != nil {
					log.Printf("LLM error: %v", err)
					return
				}
				llmResp = resp
			}()

			poem := ""
			for chunk := range ch {
				// The model was asked for <br>-separated verse; render as-is
				if _, err := fmt.Fprint(w, chunk); err != nil {
					return
				}
				poem += chunk
				flusher.Flush()
			}
			<-done
			if poem == "" {
				// Generation failed entirely; the bubble still gets text
				fmt.Fprint(w, "Kelly's verses are resting; please try again shortly.")
			}
			fmt.Fprint(w, "</div>\n")

			// Persist the turn in the hidden history field; a failed turn is
			// not carried forward
			finalHistory := history
			if poem != "" {
				plainPoem := strings.ReplaceAll(poem, "<br>", "\n")
				finalHistory = append(history,
					map[string]string{"role": "user", "content": query},
					map[string]string{"role": "assistant", "content": plainPoem},
				)
			}
			if finalHistory == nil {
				finalHistory = []map[string]string{}
			}
			historyJSON, _ := json.Marshal(finalHistory)
			safeHistory := strings.ReplaceAll(string(historyJSON), "</textarea>", "&lt;/textarea&gt;")

			fmt.Fprintf(w, htmlFooterTemplate, safeHistory, aboutHTML(), kellyDomain(), kellyDomain(), kellyDomain())

			finishTelemetry(telemetry, llmResp, query, "html_stream")
			return
		}

		// Strict curl detection: only exact match or curl/ prefix
		isCurl := (userAgent == "curl" || strings.HasPrefix(userAgent, "curl/")) && !wantsHTML && !wantsJSON && !wantsStream
		if isCurl {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Accel-Buffering", "no")
			flusher := w.(http.Flusher)

			if modelRouter == nil {
				http.Error(w, "model router not initialized", http.StatusServiceUnavailable)
				return
			}

			messages := buildKellyMessages(history, query, "plain")
			ch := make(chan string)
			var llmResp *LLMResponse
			done := make(chan struct{})
			go func() {
				defer close(done)
				resp, err := LLMWithRouter(messages, serviceCfg.Model, params, ch)
				if err != nil {
					log.Printf("LLM error: %v", err)
					return
				}
				llmResp = resp
			}()

			wrote := false
			for chunk := range ch {
				fmt.Fprint(w, chunk)
				wrote = true
				flusher.Flush()
			}
			<-done
			if !wrote {
				fmt.Fprint(w, "Kelly's verses are resting; please try again shortly.")
			}
			fmt.Fprint(w, "\n")

			finishTelemetry(telemetry, llmResp, query, "curl")
			return
		}

		// SSE path
		if wantsStream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")

			flusher, ok := w.(http.Flusher)
			if !ok {
				http.Error(w, "Streaming not supported", http.StatusInternalServerError)
				return
			}

			if modelRouter == nil {
				fmt.Fprint(w, "data: Error: model router not initialized\n\n")
				flusher.Flush()
				return
			}

			messages := buildKellyMessages(history, query, "plain")
			ch := make(chan string)
			var llmResp *LLMResponse
			done := make(chan struct{})
			go func() {
				defer close(done)
				resp, err := LLMWithRouter(messages, serviceCfg.Model, params, ch)
				if err != nil {
					log.Printf("LLM error: %v", err)
					return
				}
				llmResp = resp
			}()

			wrote := false
			for chunk := range ch {
				fmt.Fprintf(w, "data: %s\n\n", chunk)
				wrote = true
				flusher.Flush()
			}
			<-done
			if !wrote {
				fmt.Fprint(w, "data: Kelly's verses are resting; please try again shortly.\n\n")
				flusher.Flush()
			}
			fmt.Fprint(w, "data: [DONE]\n\n")

			finishTelemetry(telemetry, llmResp, query, "event-stream")
			return
		}

		// JSON and plain text: non-streaming
		if modelRouter == nil {
			http.Error(w, "model router not initialized", http.StatusServiceUnavailable)
			return
		}

		messages := buildKellyMessages(history, query, "plain")
		llmResp, err := LLMWithRouter(messages, serviceCfg.Model, params, nil)
		if err != nil {
			if wantsJSON {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Kelly's verses are resting; please try again shortly.",
				})
			} else {
				http.Error(w, "Kelly's verses are resting; please try again shortly.", http.StatusBadGateway)
			}
			finishTelemetry(telemetry, nil, query, "error")
			return
		}

		if wantsJSON {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			json.NewEncoder(w).Encode(map[string]string{
				"question": query,
				"answer":   llmResp.Content,
			})
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprintln(w, llmResp.Content)
		}

		finishTelemetry(telemetry, llmResp, query, func() string {
			if wantsJSON {
				return "json"
			}
			return "plain"
		}())
		return
	}

	// No query: render the page (with any carried history) or say hello
	if wantsHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; object-src 'none'; base-uri 'none'; style-src 'unsafe-inline'")
		fmt.Fprint(w, htmlHeader)
		for _, msg := range history {
			switch msg["role"] {
			case "user":
				fmt.Fprintf(w, "<div class=\"chat-container user\"><b>You:</b><br>%s</div>\n", html.EscapeString(msg["content"]))
			case "assistant":
				fmt.Fprintf(w, "<div class=\"chat-container kelly\"><b>Kelly:</b><br>%s</div>\n", html.EscapeString(msg["content"]))
			}
		}
		safeHistory := strings.ReplaceAll(rawHistory, "</textarea>", "&lt;/textarea&gt;")
		fmt.Fprintf(w, htmlFooterTemplate, safeHistory, aboutHTML(), kellyDomain(), kellyDomain(), kellyDomain())
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Ask Kelly a question about AI: curl "+kellyDomain()+"/?q=can-ai-think")
	}

	finishTelemetry(telemetry, nil, query, "page")
}

// trimLastExchange removes the trailing assistant answer and the user turn it
// answered, so a regenerated poem replaces the pair instead of stacking on top.
func trimLastExchange(history []map[string]string) []map[string]string {
	if len(history) > 0 && history[len(history)-1]["role"] == "assistant" {
		history = history[:len(history)-1]
	}
	if len(history) > 0 && history[len(history)-1]["role"] == "user" {
		history = history[:len(history)-1]
	}
	return history
}

// finishTelemetry folds generation metadata into the request telemetry and
// emits the completion beacon.
func finishTelemetry(telemetry *RequestTelemetry, llmResp *LLMResponse, query, responseType string) {
	if llmResp != nil {
		telemetry.InputHash = llmResp.InputHash
		telemetry.OutputHash = llmResp.OutputHash
		telemetry.InputTokens = llmResp.InputTokens
		telemetry.OutputTokens = llmResp.OutputTokens
		telemetry.Model = llmResp.Model
		telemetry.FinishReason = llmResp.FinishReason
		telemetry.ContentFiltered = llmResp.ContentFiltered
	}

	telemetry.Duration = time.Since(telemetry.StartTime)
	telemetry.Status = 200
	telemetry.Query = query
	telemetry.ResponseType = responseType

	beacon("request_complete", map[string]interface{}{
		"request_id":       telemetry.RequestID,
		"status":           telemetry.Status,
		"duration_ms":      telemetry.Duration.Milliseconds(),
		"has_query":        query != "",
		"query_hash":       generateSignature(query),
		"response_type":    telemetry.ResponseType,
		"input_hash":       telemetry.InputHash,
		"output_hash":      telemetry.OutputHash,
		"input_tokens":     telemetry.InputTokens,
		"output_tokens":    telemetry.OutputTokens,
		"total_tokens":     telemetry.InputTokens + telemetry.OutputTokens,
		"model":            telemetry.Model,
		"finish_reason":    telemetry.FinishReason,
		"content_filtered": telemetry.ContentFiltered,
	})
}

// kellyDomain returns the public hostname for the footer hints
func kellyDomain() string {
	if domain := os.Getenv("BASE_DOMAIN"); domain != "" {
		return domain
	}
	return "kelly.science"
}

// aboutHTML renders the About panel body
func aboutHTML() string {
	return strings.ReplaceAll(html.EscapeString(aboutKelly), "\n", "<br>\n")
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	if r.Method != "POST" {
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if modelRouter == nil {
		http.Error(w, "Model router not initialized", http.StatusServiceUnavailable)
		return
	}

	if req.Model == "" {
		req.Model = defaultModelID()
	}

	// Kelly's persona leads every conversation unless the caller brings
	// their own system prompt
	messages := make([]map[string]string, 0, len(req.Messages)+1)
	hasSystem := len(req.Messages) > 0 && req.Messages[0].Role == "system"
	if !hasSystem {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": kellySystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	routerParams := &RouterParams{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	llmFunc := func(input interface{}, stream chan<- string) (*LLMResponse, error) {
		return LLMWithRouter(input, req.Model, routerParams, stream)
	}

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		ch := make(chan string)
		errCh := make(chan error, 1)
		go func() {
			_, err := llmFunc(messages, ch)
			errCh <- err
		}()

		streamID := "chatcmpl-" + generateRequestID()
		wrote := false
		writeChunk := func(content string) {
			resp := map[string]interface{}{
				"id":      streamID,
				"object":  "chat.completion.chunk",
				"created": time.Now().Unix(),
				"model":   req.Model,
				"choices": []map[string]interface{}{{
					"index": 0,
					"delta": map[string]string{"content": content},
				}},
			}
			data, err := json.Marshal(resp)
			if err != nil {
				fmt.Fprintf(w, "data: Failed to marshal response\n\n")
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		for chunk := range ch {
			writeChunk(chunk)
			wrote = true
		}
		if err := <-errCh; err != nil && !wrote {
			// All deployments failed before any content; keep the stream
			// well-formed with a final generic chunk
			writeChunk("Kelly's verses are resting; please try again shortly.")
		}
		fmt.Fprintf(w, "data: [DONE]\n\n")

	} else {
		llmResp, err := llmFunc(messages, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		chatResp := ChatResponse{
			ID:      "chatcmpl-" + generateRequestID(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   llmResp.Model,
			Choices: []Choice{{
				Index: 0,
				Message: Message{
					Role:    "assistant",
					Content: llmResp.Content,
				},
				FinishReason: llmResp.FinishReason,
			}},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResp)
	}
}

// handleHealth provides a health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"services": map[string]bool{
			"http":  HTTP_PORT > 0,
			"https": HTTPS_PORT > 0,
			"ssh":   SSH_PORT > 0,
			"dns":   DNS_PORT > 0,
		},
		"ports": map[string]int{
			"http":  HTTP_PORT,
			"https": HTTPS_PORT,
			"ssh":   SSH_PORT,
			"dns":   DNS_PORT,
		},
		"mode": "production",
	}

	if os.Getenv("HIGH_PORT_MODE") == "true" {
		health["mode"] = "development"
	}

	// Check if model router is configured
	if modelRouter != nil {
		health["llm_configured"] = true
		health["router_active"] = true
		health["default_model"] = defaultModelID()
		if modelRegistry != nil {
			allModels := modelRegistry.List()
			health["available_models"] = len(allModels)
		}
		if deploymentRegistry != nil {
			healthyDeps := deploymentRegistry.GetHealthy()
			health["healthy_deployments"] = len(healthyDeps)
		}
	} else {
		health["llm_configured"] = false
		health["router_active"] = false
	}

	// Add endpoints information
	baseURL := fmt.Sprintf("http://localhost:%d", HTTP_PORT)
	health["endpoints"] = map[string]interface{}{
		"chat_completions": map[string]string{
			"url":         baseURL + "/v1/chat/completions",
			"method":      "POST",
			"description": "OpenAI-compatible chat completions API (poems only)",
		},
		"models_list": map[string]string{
			"url":         baseURL + "/v1/models",
			"method":      "GET",
			"description": "List all available models",
		},
		"about": map[string]string{
			"url":         baseURL + "/about",
			"method":      "GET",
			"description": "About Kelly, terms, and privacy policy",
		},
		"health": map[string]string{
			"url":         baseURL + "/health",
			"method":      "GET",
			"description": "This endpoint - system health and configuration",
		},
	}

	// Add privacy and terms information
	health["privacy"] = map[string]interface{}{
		"audit_logging": auditEnabled,
		"terms_url":     baseURL + "/about",
		"policy":        "Chat history lives in the page, not on the server",
	}

	// Check SSL certificates for HTTPS
	if HTTPS_PORT > 0 {
		_, _, found := findSSLCertificates()
		health["ssl_certificates"] = found
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
