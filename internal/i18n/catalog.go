package i18n

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LangPL = "pl"
	LangEN = "en"

	DefaultLang = LangEN
)

const (
	InvalidPhoneNumber       = "invalid_phone_number"
	RegistrationNotAvailable = "registration_not_available"
	ServiceUnavailable       = "service_unavailable"
	InternalError            = "internal_error"
	SMSBody                  = "sms_body"
)

//go:embed messages.yaml
var defaultMessages []byte

// Catalog maps a message key to its text per language.
type Catalog struct {
	messages map[string]map[string]string
}

func Parse(data []byte) (*Catalog, error) {
	messages := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse message catalog: %w", err)
	}
	return &Catalog{messages: messages}, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultMessages)
	if err != nil {
		panic(err)
	}
	return c
}

// Supported reports whether lang has a translation set.
func Supported(lang string) bool {
	return lang == LangPL || lang == LangEN
}

// Message returns the text for key in lang, falling back to the default
// language and finally to the key itself.
func (c *Catalog) Message(key, lang string) string {
	texts, ok := c.messages[key]
	if !ok {
		return key
	}
	if text, ok := texts[lang]; ok {
		return text
	}
	if text, ok := texts[DefaultLang]; ok {
		return text
	}
	return key
}

// Render substitutes {{name}} placeholders in the message.
func (c *Catalog) Render(key, lang string, values map[string]string) string {
	text := c.Message(key, lang)
	for name, value := range values {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}
