package intent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var extractTemplate = template.Must(template.New("extract").Parse(`You convert requests about Solana devnet wallets into JSON.

Respond with a single JSON object and nothing else, using exactly these fields:
{{.Schema}}

Rules:
- Use "GetBalance" when the user wants to know a balance.
- Use "RequestAirdrop" when the user asks for SOL, test tokens or an airdrop.
- Use "RequestAddress" when the request needs an address but you cannot tell which one.
- Copy the address exactly as written. Never invent or complete an address.
- If no address is present, set "publicKey" to "none" and "needsAddress" to "true".
- If you are unsure about anything, set "needsAddress" to "true".

User request:
{{.Query}}`))

var repairTemplate = template.Must(template.New("repair").Parse(`The text below was supposed to be a JSON object with these fields:
{{.Schema}}

It could not be used: {{.Error}}

Return only the corrected JSON object. Keep the original values where they are valid.

Text:
{{.Malformed}}`))

type promptData struct {
	Schema    string
	Query     string
	Malformed string
	Error     string
}

func executeTemplate(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func renderExtractPrompt(query string) (string, error) {
	return executeTemplate(extractTemplate, promptData{
		Schema: schemaDescription,
		Query:  strings.TrimSpace(query),
	})
}

func renderRepairPrompt(malformed string, parseErr error) (string, error) {
	return executeTemplate(repairTemplate, promptData{
		Schema:    schemaDescription,
		Malformed: malformed,
		Error:     parseErr.Error(),
	})
}
