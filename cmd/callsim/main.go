// Command callsim plays an audio file into the media-stream endpoint the way
// the telephony provider does, and logs the assistant audio it gets back.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-intake-bridge/internal/codec"
)

// 8kHz mu-law is one byte per sample, so 20ms is 160 bytes.
const (
	frameSize     = 160
	frameInterval = 20 * time.Millisecond
	wavMuLaw      = 7
)

func main() {
	audioFile := flag.String("audio", "testdata/sample-8khz-ulaw.wav", "Path to 8kHz mu-law WAV or headerless mu-law file")
	serverURL := flag.String("server", "ws://localhost:8080/media-stream", "Media stream URL")
	callID := flag.String("call", "CA"+strings.ReplaceAll(uuid.NewString(), "-", ""), "Call id")
	from := flag.String("from", "+16015550000", "Caller number")
	tail := flag.Duration("tail", 5*time.Second, "How long to keep listening after the file ends")
	flag.Parse()

	audio, err := loadAudio(*audioFile)
	if err != nil {
		log.Fatalf("Failed to load audio: %v", err)
	}
	log.Printf("Loaded %d bytes of mu-law audio (%v)", len(audio), time.Duration(len(audio)/frameSize)*frameInterval)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *serverURL)

	streamToken := "MZ" + strings.ReplaceAll(uuid.NewString(), "-", "")
	received := make(chan struct{})
	go readLoop(conn, received)

	if err := conn.WriteMessage(websocket.TextMessage, codec.EncodeStart(*callID, streamToken, *from)); err != nil {
		log.Fatalf("Failed to send start: %v", err)
	}
	log.Printf("Streaming call: callId=%s streamToken=%s", *callID, streamToken)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var frames int
	startTime := time.Now()
stream:
	for off := 0; off < len(audio); off += frameSize {
		end := min(off+frameSize, len(audio))
		payload := base64.StdEncoding.EncodeToString(audio[off:end])
		if err := conn.WriteMessage(websocket.TextMessage, codec.EncodeMediaIn(payload, streamToken)); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}
		frames++
		if frames%250 == 0 {
			log.Printf("Sent %d frames (%v)", frames, time.Since(startTime).Round(time.Millisecond))
		}

		select {
		case <-ticker.C:
		case <-sig:
			log.Println("Interrupted, hanging up")
			break stream
		case <-received:
			log.Println("Server closed the stream")
			return
		}
	}
	log.Printf("Finished streaming: %d frames in %v", frames, time.Since(startTime).Round(time.Millisecond))

	select {
	case <-time.After(*tail):
	case <-sig:
	case <-received:
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, codec.EncodeStop(streamToken)); err != nil {
		log.Fatalf("Failed to send stop: %v", err)
	}
	log.Println("Sent stop, waiting for close")

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		log.Println("Timed out waiting for the server to close")
	}
}

// readLoop logs frames sent back on the stream and closes done when the
// connection ends.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	var mediaFrames, mediaBytes int
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Stream closed normally: %d assistant frames, %d bytes", mediaFrames, mediaBytes)
			} else {
				log.Printf("Stream ended: %v (%d assistant frames)", err, mediaFrames)
			}
			return
		}

		var msg struct {
			Event string `json:"event"`
			Media struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Undecodable frame: %v", err)
			continue
		}

		switch msg.Event {
		case "media":
			mediaFrames++
			mediaBytes += base64.StdEncoding.DecodedLen(len(msg.Media.Payload))
			if mediaFrames%50 == 1 {
				log.Printf("Receiving assistant audio (%d frames so far)", mediaFrames)
			}
		default:
			log.Printf("Received %s", msg.Event)
		}
	}
}

// loadAudio returns raw mu-law bytes from a WAV container or a headerless file.
func loadAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, nil
	}
	return wavData(data)
}

// wavData walks the RIFF chunks, checks the fmt chunk, and returns the data
// chunk.
func wavData(file []byte) ([]byte, error) {
	r := bytes.NewReader(file[12:])
	var sawFormat bool
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("wav: no data chunk: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("wav: truncated chunk header: %w", err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("wav: truncated %q chunk: %w", string(id[:]), err)
		}
		if size%2 == 1 {
			_, _ = r.ReadByte()
		}

		switch string(id[:]) {
		case "fmt ":
			if len(body) < 16 {
				return nil, fmt.Errorf("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			log.Printf("WAV file: format=%d channels=%d sampleRate=%d", format, channels, rate)
			if format != wavMuLaw || channels != 1 {
				return nil, fmt.Errorf("wav: need mono mu-law, got format=%d channels=%d", format, channels)
			}
			if rate != 8000 {
				log.Printf("Warning: Sample rate is %d Hz, expected 8000 Hz", rate)
			}
			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			return body, nil
		}
	}
}
