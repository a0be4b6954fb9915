package quiz

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is one of the fixed arithmetic operators.
type Operator string

const (
	OpAdd      Operator = "+"
	OpSubtract Operator = "-"
	OpMultiply Operator = "*"
	OpDivide   Operator = "/"
	OpModulo   Operator = "%"
	OpPower    Operator = "^"
)

// Operators lists the operator set in a stable order.
var Operators = []Operator{OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo, OpPower}

// DomainProblem separates problem hashes from any other hash the system computes.
const DomainProblem = "quizarena/problem/v1"

var (
	// ErrShape is returned when operand and operator counts disagree.
	ErrShape = errors.New("operators must number exactly one less than operands")

	// ErrOperator is returned for operators outside the fixed set.
	ErrOperator = errors.New("unknown operator")

	// ErrNotFinite is returned when the fold overflows or produces NaN.
	ErrNotFinite = errors.New("answer is not finite")
)

// Problem is an immutable multi-step computation.
type Problem struct {
	Numbers    []int      `json:"numbers"`
	Operations []Operator `json:"operations"`
	Steps      []string   `json:"steps"`
	Answer     float64    `json:"answer"`
}

// NewProblem folds numbers through ops, producing steps and the rounded answer.
func NewProblem(numbers []int, ops []Operator) (Problem, error) {
	if len(numbers) < 2 || len(ops) != len(numbers)-1 {
		return Problem{}, fmt.Errorf("%w: %d operands, %d operators", ErrShape, len(numbers), len(ops))
	}

	steps := make([]string, 0, len(ops)+1)
	acc := float64(numbers[0])
	for i, op := range ops {
		next := float64(numbers[i+1])
		text, err := describe(op, acc, next)
		if err != nil {
			return Problem{}, err
		}
		steps = append(steps, fmt.Sprintf("%d. %s", i+1, text))
		acc = apply(op, acc, next)
	}
	if math.IsInf(acc, 0) || math.IsNaN(acc) {
		return Problem{}, ErrNotFinite
	}
	steps = append(steps, fmt.Sprintf("%d. Round the result to 2 decimal places if necessary", len(steps)+1))

	return Problem{
		Numbers:    append([]int(nil), numbers...),
		Operations: append([]Operator(nil), ops...),
		Steps:      steps,
		Answer:     Round2(acc),
	}, nil
}

// Hash returns the content hash of the problem's operands and operators.
// Steps and answer are derived, so they do not participate.
func (p Problem) Hash() string {
	nums := make([]string, len(p.Numbers))
	for i, n := range p.Numbers {
		nums[i] = strconv.Itoa(n)
	}
	ops := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		ops[i] = string(op)
	}
	return hashWithDomain(DomainProblem, []byte(strings.Join(nums, ",")+"|"+strings.Join(ops, ",")))
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func apply(op Operator, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSubtract:
		return a - b
	case OpMultiply:
		return a * b
	case OpDivide:
		return a / b
	case OpModulo:
		return math.Mod(a, b)
	case OpPower:
		return math.Pow(a, b)
	default:
		return 0
	}
}

func describe(op Operator, a, b float64) (string, error) {
	x, y := formatNumber(a), formatNumber(b)
	switch op {
	case OpAdd:
		return fmt.Sprintf("Add %s and %s", x, y), nil
	case OpSubtract:
		return fmt.Sprintf("Subtract %s from %s", y, x), nil
	case OpMultiply:
		return fmt.Sprintf("Multiply %s by %s", x, y), nil
	case OpDivide:
		return fmt.Sprintf("Divide %s by %s", x, y), nil
	case OpModulo:
		return fmt.Sprintf("Calculate %s modulo %s", x, y), nil
	case OpPower:
		return fmt.Sprintf("Raise %s to the power of %s", x, y), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrOperator, op)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
