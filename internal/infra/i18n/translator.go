package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Message keys used by the chat surface.
const (
	KeyNoAnswer          = "no_answer"
	KeyMessageTooLong    = "message_too_long"
	KeyEmptyMessage      = "empty_message"
	KeyNoAssistant       = "no_assistant"
	KeyRateLimited       = "rate_limited"
	KeyQuotaExceeded     = "quota_exceeded"
	KeyGenericError      = "generic_error"
	KeyTimeout           = "timeout"
	KeyUnauthorized      = "unauthorized"
	KeyTurnInProgress    = "turn_in_progress"
	KeyGroundedDisclaim  = "grounded_disclaimer"
	KeyCitationsAdvisory = "citations_advisory"
)

type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the translation for key, or key itself when missing.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
