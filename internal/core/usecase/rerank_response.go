package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errMalformedRanking = errors.New("malformed ranking response")

type rankEntryKind int

const (
	rankEntryScored rankEntryKind = iota + 1
	rankEntryBare
)

// rankEntry is one element of the model's ranking array. It is either a
// scored object {"id": "Doc 3", "score": 87} or a legacy bare handle "Doc 3".
type rankEntry struct {
	Kind   rankEntryKind
	Handle string
	Score  *float64
}

func (e *rankEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errMalformedRanking
	}

	switch data[0] {
	case '"':
		var handle string
		if err := json.Unmarshal(data, &handle); err != nil {
			return err
		}
		*e = rankEntry{Kind: rankEntryBare, Handle: handle}
		return nil
	case '{':
		var obj struct {
			ID     json.RawMessage `json:"id"`
			Handle json.RawMessage `json:"handle"`
			Doc    json.RawMessage `json:"doc"`
			Score  json.RawMessage `json:"score"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		handle, err := firstHandle(obj.ID, obj.Handle, obj.Doc)
		if err != nil {
			return err
		}
		score, err := parseScore(obj.Score)
		if err != nil {
			return err
		}
		*e = rankEntry{Kind: rankEntryScored, Handle: handle, Score: score}
		return nil
	default:
		return fmt.Errorf("%w: unexpected entry %q", errMalformedRanking, truncateRunes(string(data), 40))
	}
}

func firstHandle(candidates ...json.RawMessage) (string, error) {
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return "", err
			}
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: handle is neither string nor number", errMalformedRanking)
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: entry without handle", errMalformedRanking)
}

func parseScore(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
	} else {
		text = string(raw)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: score %q", errMalformedRanking, text)
	}
	return &v, nil
}

// decodeRanking accepts a top-level array or an object wrapping the array
// under a well-known key. Markdown code fences around the payload are ignored.
func decodeRanking(raw string) ([]rankEntry, error) {
	payload := []byte(stripCodeFence(raw))
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty", errMalformedRanking)
	}

	switch payload[0] {
	case '[':
		var entries []rankEntry
		if err := json.Unmarshal(payload, &entries); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedRanking, err)
		}
		return entries, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedRanking, err)
		}
		for _, key := range []string{"results", "rankings", "ranking", "documents"} {
			inner, ok := wrapper[key]
			if !ok {
				continue
			}
			var entries []rankEntry
			if err := json.Unmarshal(inner, &entries); err != nil {
				return nil, fmt.Errorf("%w: %w", errMalformedRanking, err)
			}
			return entries, nil
		}
		return nil, fmt.Errorf("%w: object without ranking array", errMalformedRanking)
	default:
		return nil, fmt.Errorf("%w: not json", errMalformedRanking)
	}
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// handleKey folds "Doc 3", "doc3" and "3" to the same lookup key.
func handleKey(handle string) string {
	key := strings.ToLower(strings.Join(strings.Fields(handle), ""))
	key = strings.Trim(key, "[]()#")
	if _, err := strconv.Atoi(key); err == nil {
		return "doc" + key
	}
	return key
}
