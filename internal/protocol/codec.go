package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload reports an inbound frame that could not be decoded as a
// JSON object. It is wrapped by [*MalformedError]; match with errors.Is.
var ErrMalformedPayload = errors.New("protocol: malformed payload")

// MalformedError carries the raw bytes of an undecodable inbound frame so
// they can be retained for diagnosis.
type MalformedError struct {
	Raw []byte
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("protocol: malformed payload (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedPayload }

// SetupPayload configures the live session in the initial setup message.
type SetupPayload struct {
	Model               string
	EnableTranscription bool
}

// ContentPayload is a user text turn delivered as clientContent.
type ContentPayload struct {
	Text         string
	TurnComplete bool
}

// ── Outgoing envelopes ─────────────────────────────────────────────────────────

type setupEnvelope struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model                   string            `json:"model"`
	GenerationConfig        *generationConfig `json:"generationConfig,omitempty"`
	InputAudioTranscription *struct{}         `json:"inputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type realtimeInputEnvelope struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded PCM
}

type clientContentEnvelope struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type pingEnvelope struct {
	Ping pingBody `json:"ping"`
}

type pingBody struct {
	ID string `json:"id"`
}

// Encode wraps msg in its type-specific envelope and returns the JSON bytes
// ready for the socket. sampleRate describes the PCM carried by realtime
// input messages (it becomes part of the MIME descriptor). Unknown types are
// marshalled as-is, unwrapped.
func Encode(msg Message, sampleRate int) ([]byte, error) {
	switch msg.Type {
	case TypeSetup:
		p, ok := msg.Payload.(SetupPayload)
		if !ok {
			return nil, fmt.Errorf("protocol: setup message requires SetupPayload, got %T", msg.Payload)
		}
		env := setupEnvelope{Setup: setupBody{
			Model:            p.Model,
			GenerationConfig: &generationConfig{ResponseModalities: []string{"text"}},
		}}
		if p.EnableTranscription {
			env.Setup.InputAudioTranscription = &struct{}{}
		}
		return json.Marshal(env)

	case TypeRealtimeInput:
		pcm, ok := msg.Payload.([]byte)
		if !ok {
			return nil, fmt.Errorf("protocol: realtime input requires []byte PCM, got %T", msg.Payload)
		}
		env := realtimeInputEnvelope{RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{
				MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		}}
		return json.Marshal(env)

	case TypeClientContent:
		p, ok := msg.Payload.(ContentPayload)
		if !ok {
			return nil, fmt.Errorf("protocol: client content requires ContentPayload, got %T", msg.Payload)
		}
		env := clientContentEnvelope{ClientContent: clientContent{
			Turns:        []contentTurn{{Role: "user", Parts: []part{{Text: p.Text}}}},
			TurnComplete: p.TurnComplete,
		}}
		return json.Marshal(env)

	case TypePing:
		return json.Marshal(pingEnvelope{Ping: pingBody{ID: msg.ID}})

	default:
		// Custom types pass through unwrapped.
		return json.Marshal(msg.Payload)
	}
}

// ── Incoming detection ─────────────────────────────────────────────────────────

// ServerError is the error object delivered inside an inbound error message.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Incoming is a decoded, classified inbound message.
type Incoming struct {
	// Type is the detected message type.
	Type Type

	// ResponseID correlates the message with a pending outgoing message, when
	// the server echoed an id or response_id field. Empty otherwise.
	ResponseID string

	// Text carries transcript text for server content messages.
	Text string

	// TurnComplete is set when the server signalled the end of a turn, either
	// standalone or inside server content.
	TurnComplete bool

	// Confidence is the recognition confidence when reported, else 0.
	Confidence float64

	// Audio holds decoded PCM for audio-data messages.
	Audio []byte

	// Err describes an inbound error message.
	Err *ServerError

	// Raw is the undecoded frame, retained for diagnostics.
	Raw json.RawMessage
}

// serverFrame mirrors the superset of fields the server may send. Both the
// camelCase wire names and their snake_case variants are accepted.
type serverFrame struct {
	ServerContent  *serverContentBody `json:"serverContent"`
	ServerContentS *serverContentBody `json:"server_content"`
	ModelTurn      *modelTurnBody     `json:"modelTurn"`
	ModelTurnS     *modelTurnBody     `json:"model_turn"`
	TurnComplete   *bool              `json:"turnComplete"`
	TurnCompleteS  *bool              `json:"turn_complete"`
	Data           *string            `json:"data"`
	AudioData      *string            `json:"audio_data"`
	Pong           json.RawMessage    `json:"pong"`
	SetupComplete  json.RawMessage    `json:"setupComplete"`
	SetupCompleteS json.RawMessage    `json:"setup_complete"`
	Error          *ServerError       `json:"error"`

	ID         string `json:"id"`
	ResponseID string `json:"response_id"`
}

type serverContentBody struct {
	ModelTurn           *modelTurnBody `json:"modelTurn"`
	ModelTurnS          *modelTurnBody `json:"model_turn"`
	TurnComplete        bool           `json:"turnComplete"`
	TurnCompleteS       bool           `json:"turn_complete"`
	InputTranscription  *transcription `json:"inputTranscription"`
	InputTranscriptionS *transcription `json:"input_transcription"`
}

type modelTurnBody struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// Decode classifies an inbound frame by which well-known field it carries.
// Server content takes precedence; a JSON object matching no known field is
// treated as server content for forward compatibility. Malformed JSON and
// non-object payloads yield a [*MalformedError] instead of panicking.
func Decode(data []byte) (Incoming, error) {
	// json.Unmarshal accepts `null` as a no-op into a struct, which would
	// leave a zero frame and misclassify it below. Require an object.
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Incoming{}, &MalformedError{Raw: data, Err: errors.New("payload is not a JSON object")}
	}

	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Incoming{}, &MalformedError{Raw: data, Err: err}
	}

	in := Incoming{Raw: data, ResponseID: firstNonEmpty(frame.ResponseID, frame.ID)}

	sc := frame.ServerContent
	if sc == nil {
		sc = frame.ServerContentS
	}
	mt := frame.ModelTurn
	if mt == nil {
		mt = frame.ModelTurnS
	}

	switch {
	case sc != nil:
		in.Type = TypeServerContent
		fillFromServerContent(&in, sc)

	case mt != nil:
		in.Type = TypeServerContent
		in.Text = joinParts(mt.Parts)

	case frame.TurnComplete != nil || frame.TurnCompleteS != nil:
		in.Type = TypeTurnComplete
		in.TurnComplete = true

	case frame.Data != nil || frame.AudioData != nil:
		in.Type = TypeAudioData
		encoded := frame.Data
		if encoded == nil {
			encoded = frame.AudioData
		}
		audio, err := base64.StdEncoding.DecodeString(*encoded)
		if err != nil {
			return Incoming{}, &MalformedError{Raw: data, Err: fmt.Errorf("decode audio data: %w", err)}
		}
		in.Audio = audio

	case frame.Pong != nil:
		in.Type = TypePong

	case frame.SetupComplete != nil || frame.SetupCompleteS != nil:
		in.Type = TypeSetupComplete

	case frame.Error != nil:
		in.Type = TypeError
		in.Err = frame.Error

	default:
		// Unrecognised object: default to server content so a newer server
		// cannot wedge an older client.
		in.Type = TypeServerContent
	}

	return in, nil
}

func fillFromServerContent(in *Incoming, sc *serverContentBody) {
	mt := sc.ModelTurn
	if mt == nil {
		mt = sc.ModelTurnS
	}
	if mt != nil {
		in.Text = joinParts(mt.Parts)
	}
	it := sc.InputTranscription
	if it == nil {
		it = sc.InputTranscriptionS
	}
	if it != nil && it.Text != "" {
		in.Text = it.Text
		in.Confidence = it.Confidence
		if it.IsFinal {
			in.TurnComplete = true
		}
	}
	if sc.TurnComplete || sc.TurnCompleteS {
		in.TurnComplete = true
	}
}

func joinParts(parts []part) string {
	var out string
	for _, p := range parts {
		if p.Text != "" {
			out += p.Text
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
