package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchema is the JSON schema the completer is asked to follow. Fields are
// strings on the wire; amount may also come back as a bare number.
var wireSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"action", "publicKey", "needsAddress"},
	"properties": map[string]interface{}{
		"action": map[string]interface{}{
			"type": "string",
		},
		"publicKey": map[string]interface{}{
			"type": "string",
		},
		"needsAddress": map[string]interface{}{
			"enum": []interface{}{"true", "false", true, false},
		},
		"amount": map[string]interface{}{
			"type": []interface{}{"string", "number", "null"},
		},
	},
}

var schemaLoader = gojsonschema.NewGoLoader(wireSchema)

// schemaDescription is the field list shown to the model in both prompts.
const schemaDescription = `{
  "action": one of "GetBalance", "RequestAddress", "RequestAirdrop",
  "publicKey": the Solana address mentioned in the query, or "none",
  "needsAddress": "true" or "false",
  "amount": amount of SOL requested as a string, or "none"
}`

// parseIntent decodes raw completer output into an Intent. It locates the JSON
// object in the text, validates it against wireSchema and decodes it once into
// typed fields.
func parseIntent(raw string) (Intent, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return Intent{}, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Intent{}, fmt.Errorf("invalid JSON: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Intent{}, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return Intent{}, fmt.Errorf("schema validation failed: %s", strings.Join(errs, "; "))
	}

	action, err := ParseAction(doc["action"].(string))
	if err != nil {
		return Intent{}, err
	}

	out := Intent{Action: action}

	if pk := strings.TrimSpace(doc["publicKey"].(string)); !isNone(pk) {
		out.Address = &pk
	}

	switch v := doc["needsAddress"].(type) {
	case bool:
		out.NeedsAddress = v
	case string:
		out.NeedsAddress = v == "true"
	}

	amount, err := parseAmount(doc["amount"])
	if err != nil {
		return Intent{}, err
	}
	out.Amount = amount

	return out.normalize(), nil
}

func parseAmount(v interface{}) (*float64, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &a, nil
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(a), "SOL"))
		if isNone(s) {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", a)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("invalid amount %v", v)
	}
}

// extractJSONObject returns the outermost {...} span of s. Models often wrap
// the object in prose or code fences.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in completion output")
	}
	return s[start : end+1], nil
}
