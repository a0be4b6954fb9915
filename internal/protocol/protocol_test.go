package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quizarena/internal/quiz"
	"github.com/roach88/quizarena/internal/session"
)

func TestDecode_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "join",
			raw:  `{"type":"join-matchmaking","payload":{"playerName":"  alice "}}`,
			want: JoinMatchmaking{PlayerName: "alice"},
		},
		{
			name: "leave without payload",
			raw:  `{"type":"leave-matchmaking"}`,
			want: LeaveMatchmaking{},
		},
		{
			name: "submit",
			raw:  `{"type":"submit-answer","payload":{"sessionId":"s1","answer":24.44}}`,
			want: SubmitAnswer{SessionID: "s1", Answer: 24.44},
		},
		{
			name: "submit zero answer",
			raw:  `{"type":"submit-answer","payload":{"sessionId":"s1","answer":0}}`,
			want: SubmitAnswer{SessionID: "s1", Answer: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `hello`, ErrMalformed},
		{"missing type", `{"payload":{}}`, ErrMalformed},
		{"unknown type", `{"type":"cheat"}`, ErrUnknownType},
		{"join without payload", `{"type":"join-matchmaking"}`, ErrInvalidPayload},
		{"join empty name", `{"type":"join-matchmaking","payload":{"playerName":"   "}}`, session.ErrInvalidName},
		{"join wrong shape", `{"type":"join-matchmaking","payload":{"playerName":7}}`, ErrInvalidPayload},
		{"submit missing answer", `{"type":"submit-answer","payload":{"sessionId":"s1"}}`, ErrInvalidPayload},
		{"submit string answer", `{"type":"submit-answer","payload":{"sessionId":"s1","answer":"24"}}`, ErrInvalidPayload},
		{"submit missing session", `{"type":"submit-answer","payload":{"answer":1}}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(AnswerResult{PlayerName: "alice", Correct: true, Points: 350, NewScore: 350})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"answer-result","payload":{"playerName":"alice","correct":true,"points":350,"newScore":350}}`,
		string(data))
}

func TestEncode_NewProblemHidesAnswer(t *testing.T) {
	p, err := quiz.NewProblem([]int{2, 3, 4, 5}, []quiz.Operator{quiz.OpAdd, quiz.OpMultiply, quiz.OpSubtract})
	require.NoError(t, err)

	data, err := Encode(NewProblem{ProblemNumber: 1, Problem: ViewOf(p), TimeLimit: 30000})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeNewProblem, env.Type)
	assert.NotContains(t, string(env.Payload), "answer")
	assert.Contains(t, string(env.Payload), `"timeLimit":30000`)
}

func TestEncodeInbound_RoundTrip(t *testing.T) {
	for _, msg := range []Inbound{
		JoinMatchmaking{PlayerName: "bob"},
		LeaveMatchmaking{},
		SubmitAnswer{SessionID: "s9", Answer: -3.5},
	} {
		data, err := EncodeInbound(msg)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestErrorFor(t *testing.T) {
	_, err := Decode([]byte(`{"type":"join-matchmaking","payload":{"playerName":""}}`))
	assert.Equal(t, CodeInvalidName, ErrorFor(err).Code)

	_, err = Decode([]byte(`{"type":"nope"}`))
	assert.Equal(t, CodeBadMessage, ErrorFor(err).Code)
}

func TestScores(t *testing.T) {
	got := Scores([]session.Player{
		{ConnID: "c1", Name: "alice", Score: 450, Correct: 3},
		{ConnID: "c2", Name: "bob", Score: 0},
	})
	assert.Equal(t, []PlayerScore{
		{PlayerName: "alice", Score: 450, CorrectAnswers: 3},
		{PlayerName: "bob", Score: 0, CorrectAnswers: 0},
	}, got)
}
