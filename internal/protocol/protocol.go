package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
)

// Message types.
const (
	TypeJoinMatchmaking  = "join-matchmaking"
	TypeLeaveMatchmaking = "leave-matchmaking"
	TypeSubmitAnswer     = "submit-answer"

	TypeWaiting            = "waiting"
	TypeMatchFound         = "match-found"
	TypeNewProblem         = "new-problem"
	TypeAnswerResult       = "answer-result"
	TypeTimeUp             = "time-up"
	TypePlayerLeft         = "player-left"
	TypeSessionEnd         = "session-end"
	TypeMatchmakingExpired = "matchmaking-expired"
	TypeError              = "error"
)

// Error codes carried by Error messages.
const (
	CodeBadMessage     = "BAD_MESSAGE"
	CodeInvalidName    = "INVALID_NAME"
	CodeAlreadyPlaying = "ALREADY_PLAYING"
)

var (
	// ErrMalformed is returned for frames that are not a JSON envelope.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType is returned for envelopes with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")

	// ErrInvalidPayload is returned when a payload fails validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the wire frame for every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is a validated client request.
type Inbound interface {
	inbound()
}

// JoinMatchmaking asks to be queued under a display name.
type JoinMatchmaking struct {
	PlayerName string `json:"playerName"`
}

// LeaveMatchmaking withdraws from the queue.
type LeaveMatchmaking struct{}

// SubmitAnswer answers the current problem of a session.
type SubmitAnswer struct {
	SessionID string  `json:"sessionId"`
	Answer    float64 `json:"answer"`
}

func (JoinMatchmaking) inbound()  {}
func (LeaveMatchmaking) inbound() {}
func (SubmitAnswer) inbound()     {}

// Decode parses and validates one inbound frame. Display names come back
// normalised.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoinMatchmaking:
		var p JoinMatchmaking
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		name, err := session.NormalizeName(p.PlayerName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return JoinMatchmaking{PlayerName: name}, nil

	case TypeLeaveMatchmaking:
		return LeaveMatchmaking{}, nil

	case TypeSubmitAnswer:
		var p struct {
			SessionID string   `json:"sessionId"`
			Answer    *float64 `json:"answer"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		id := strings.TrimSpace(p.SessionID)
		if id == "" {
			return nil, fmt.Errorf("%w: sessionId required", ErrInvalidPayload)
		}
		if p.Answer == nil || math.IsNaN(*p.Answer) || math.IsInf(*p.Answer, 0) {
			return nil, fmt.Errorf("%w: numeric answer required", ErrInvalidPayload)
		}
		return SubmitAnswer{SessionID: id, Answer: *p.Answer}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: payload required", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// EncodeInbound builds the wire frame for a client request. Used by clients
// and tests.
func EncodeInbound(msg Inbound) ([]byte, error) {
	var typ string
	switch msg.(type) {
	case JoinMatchmaking:
		typ = TypeJoinMatchmaking
	case LeaveMatchmaking:
		typ = TypeLeaveMatchmaking
	case SubmitAnswer:
		typ = TypeSubmitAnswer
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return encode(typ, msg)
}

// Outbound is a server event.
type Outbound interface {
	Type() string
}

// Encode builds the wire frame for a server event.
func Encode(msg Outbound) ([]byte, error) {
	return encode(msg.Type(), msg)
}

func encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// PlayerScore is a player's public standing.
type PlayerScore struct {
	PlayerName     string `json:"playerName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// Scores converts session players to their public standing.
func Scores(players []session.Player) []PlayerScore {
	out := make([]PlayerScore, len(players))
	for i, p := range players {
		out[i] = PlayerScore{PlayerName: p.Name, Score: p.Score, CorrectAnswers: p.Correct}
	}
	return out
}

// ProblemView is a problem as shown to session members; the answer stays on
// the server.
type ProblemView struct {
	Numbers    []int           `json:"numbers"`
	Operations []quiz.Operator `json:"operations"`
	Steps      []string        `json:"steps"`
}

// ViewOf hides p's answer.
func ViewOf(p quiz.Problem) ProblemView {
	return ProblemView{Numbers: p.Numbers, Operations: p.Operations, Steps: p.Steps}
}

// Waiting acknowledges a join.
type Waiting struct {
	Message     string `json:"message"`
	QueueLength int    `json:"queueLength"`
}

// MatchFound announces a new session to its members.
type MatchFound struct {
	SessionID string        `json:"sessionId"`
	Players   []PlayerScore `json:"players"`
	StartsIn  int64         `json:"startsIn"` // milliseconds
}

// NewProblem starts a cycle.
type NewProblem struct {
	ProblemNumber int64       `json:"problemNumber"`
	Problem       ProblemView `json:"problem"`
	TimeLimit     int64       `json:"timeLimit"` // milliseconds
}

// AnswerResult reports one scored submission to the whole session.
type AnswerResult struct {
	PlayerName string `json:"playerName"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
	NewScore   int    `json:"newScore"`
}

// TimeUp ends a cycle nobody solved.
type TimeUp struct {
	CorrectAnswer float64 `json:"correctAnswer"`
}

// PlayerLeft reports a departed member.
type PlayerLeft struct {
	PlayerName string `json:"playerName"`
}

// SessionEnd closes a session.
type SessionEnd struct {
	Winner      string        `json:"winner"`
	FinalScores []PlayerScore `json:"finalScores"`
}

// MatchmakingExpired tells a queued player no match formed in time.
type MatchmakingExpired struct {
	Message string `json:"message"`
}

// Error reports a rejected request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Waiting) Type() string            { return TypeWaiting }
func (MatchFound) Type() string         { return TypeMatchFound }
func (NewProblem) Type() string         { return TypeNewProblem }
func (AnswerResult) Type() string       { return TypeAnswerResult }
func (TimeUp) Type() string             { return TypeTimeUp }
func (PlayerLeft) Type() string         { return TypePlayerLeft }
func (SessionEnd) Type() string         { return TypeSessionEnd }
func (MatchmakingExpired) Type() string { return TypeMatchmakingExpired }
func (Error) Type() string              { return TypeError }

// ErrorFor maps a Decode error to an Error message.
func ErrorFor(err error) Error {
	switch {
	case errors.Is(err, session.ErrInvalidName):
		return Error{Code: CodeInvalidName, Message: err.Error()}
	default:
		return Error{Code: CodeBadMessage, Message: err.Error()}
	}
}
