package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

type Translator struct {
	lang         string
	translations map[string]string
	printer      *message.Printer
	dateLayout   string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(langCode, data)
}

func newTranslatorFromBytes(langCode string, data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	tag, err := language.Parse(langCode)
	if err != nil {
		tag = language.Russian
	}
	layout := "02.01.2006"
	if base, _ := tag.Base(); base.String() == "en" {
		layout = "2006-01-02"
	}
	return &Translator{
		lang:         langCode,
		translations: translations,
		printer:      message.NewPrinter(tag),
		dateLayout:   layout,
	}, nil
}

// T formats the message for key; a missing key is returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return t.printer.Sprintf(format, args...)
	}
	return format
}

// Amount renders money with locale grouping and at most two decimals.
func (t *Translator) Amount(d decimal.Decimal) string {
	return t.printer.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2)))
}

func (t *Translator) Date(at time.Time) string {
	return at.Format(t.dateLayout)
}

func (t *Translator) Lang() string { return t.lang }
