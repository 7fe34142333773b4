// Command scribeclient transcribes a WAV file through a running gateway,
// either as a single upload or streamed over WebSocket.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scribe-mcp-gateway/internal/audio"
	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/netutil"
)

func main() {
	file := flag.String("file", "", "Path to a WAV file")
	server := flag.String("server", "", "Gateway base URL (default: scan localhost:8000-8099)")
	stream := flag.Bool("stream", false, "Stream over WebSocket instead of a single upload")
	chunk := flag.Duration("chunk", 2*time.Second, "Audio per WebSocket frame when streaming")
	realtime := flag.Bool("realtime", true, "Pace streamed frames at playback speed")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	base := *server
	if base == "" {
		found, err := findServer(netutil.DefaultStartPort, netutil.DefaultAttempts)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not find running gateway")
		}
		base = found
	}
	base = strings.TrimRight(base, "/")
	log.Info().Str("server", base).Msg("Connected to gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *stream {
		if err := streamFile(ctx, base, *file, *chunk, *realtime); err != nil {
			log.Fatal().Err(err).Msg("Streaming failed")
		}
		return
	}

	result, err := uploadFile(ctx, base, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Transcription failed")
	}
	fmt.Printf("Transcription: %s\n", result.Text)
}

// findServer returns the first localhost port whose /health answers 200.
func findServer(start, attempts int) (string, error) {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for port := start; port < start+attempts; port++ {
		url := "http://localhost:" + strconv.Itoa(port)
		resp, err := client.Get(url + "/health")
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return url, nil
		}
	}
	return "", fmt.Errorf("no gateway answered on ports %d-%d", start, start+attempts-1)
}

func uploadFile(ctx context.Context, base, path string) (*mcp.TranscriptionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("audio_file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/transcribe", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var result mcp.TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

func streamFile(ctx context.Context, base, path string, chunk time.Duration, realtime bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	pcm, format, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		return err
	}

	def := mcp.DefaultAudioFormat()
	if format != def {
		log.Warn().
			Int("sampleRate", format.SampleRate).
			Int("channels", format.Channels).
			Int("sampleWidth", format.SampleWidth).
			Msg("Streams are transcribed as 16kHz 16-bit mono; this file will be misread")
	}

	frameBytes := int(chunk.Seconds() * float64(format.SampleRate*format.Channels*format.SampleWidth))
	frameBytes -= frameBytes % (format.Channels * format.SampleWidth)
	if frameBytes <= 0 {
		return errors.New("chunk duration too short")
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws/transcribe"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	frames := (len(pcm) + frameBytes - 1) / frameBytes
	log.Info().Int("frames", frames).Dur("chunk", chunk).Msg("Streaming audio")

	readDone := make(chan error, 1)
	go func() { readDone <- printResults(conn, frames) }()

	for off := 0; off < len(pcm); off += frameBytes {
		end := min(off+frameBytes, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		if realtime {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(chunk):
			}
		}
	}

	select {
	case err := <-readDone:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	stopMsg, err := json.Marshal(mcp.NewMessage(mcp.KindStop, "", 0, nil))
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, stopMsg); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// printResults prints transcription and error messages until want results
// have arrived. Failed chunks produce no result, so it also stops after the
// stream goes quiet.
func printResults(conn *websocket.Conn, want int) error {
	for got := 0; got < want; {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		var msg mcp.Message
		if err := conn.ReadJSON(&msg); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Warn().Int("received", got).Int("expected", want).Msg("No more results")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch p := msg.Payload.(type) {
		case mcp.TranscriptionResult:
			got++
			fmt.Printf("[%d] %s\n", msg.Sequence, p.Text)
		case mcp.Error:
			log.Error().Str("code", p.Code).Msg(p.Message)
		}
	}
	return nil
}
