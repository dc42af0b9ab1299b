package txbuilder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// contractErrors maps raffle contract error codes to messages
var contractErrors = map[int]string{
	100: "Only the contract owner can perform this action",
	101: "No tickets have been sold yet",
	102: "Transfer failed - please check your balance",
	103: "This round has already been drawn",
	104: "Too early to draw - please wait for more blocks",
	105: "Invalid ticket ID",
	106: "Round not found",
	107: "No prize available to claim",
	108: "Prize has already been claimed",
}

// Tried in order; the first pattern naming a known code wins
var errorCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(err u(\d+)\)`),
	regexp.MustCompile(`(?i)error u(\d+)`),
	regexp.MustCompile(`(?i)code: (\d+)`),
	regexp.MustCompile(`\bu(\d+)\b`),
}

// ContractErrorMessage turns a signing or broadcast failure into a message
// for the user
func ContractErrorMessage(err error) string {
	if err == nil {
		return "An unknown error occurred"
	}
	return MessageFor(err.Error())
}

// MessageFor is ContractErrorMessage for an error text
func MessageFor(text string) string {
	for _, pattern := range errorCodePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		code, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if msg, ok := contractErrors[code]; ok {
			return msg
		}
	}

	switch {
	case strings.Contains(text, "insufficient funds"):
		return "Insufficient balance - please add more STX to your wallet"
	case strings.Contains(text, "cancelled"), strings.Contains(text, "rejected"):
		return "Transaction was cancelled"
	case strings.Contains(text, "timeout"):
		return "Transaction timed out - please try again"
	}
	return "Transaction failed - please try again"
}

// IsUserCancellation reports whether err is the user closing the wallet
// prompt rather than a failure
func IsUserCancellation(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "cancel") || strings.Contains(text, "rejected by user")
}

// TxError is a submission failure with its user-facing message
type TxError struct {
	Function string
	Message  string
	Err      error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s: %v", e.Function, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
