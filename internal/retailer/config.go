package retailer

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Section groups configuration fields that are reset together.
type Section string

const (
	SectionProfile Section = "profile"
	SectionRates   Section = "rates"
	SectionVisual  Section = "visual"
)

// Sections lists every resettable section.
func Sections() []Section {
	return []Section{SectionProfile, SectionRates, SectionVisual}
}

// MakingChargeType selects how a making charge is derived.
type MakingChargeType string

const (
	// MakingChargePercentage charges value% of the GST-adjusted price.
	MakingChargePercentage MakingChargeType = "percentage"
	// MakingChargePerGram adds value as a flat amount in the metal's display
	// unit: per 10 g for gold, per gram for silver.
	MakingChargePerGram MakingChargeType = "perGram"
)

// MakingCharge is the per-purity making charge setting.
type MakingCharge struct {
	Type  MakingChargeType `json:"type"`
	Value float64          `json:"value"`
	Title string           `json:"title"`
}

// Config is the complete per-shop configuration document. Every field carries
// a section tag; LogoBase64 and FrozenAt are the only optional fields.
type Config struct {
	ShopName             string  `json:"shopName" section:"profile"`
	OwnerName            string  `json:"ownerName" section:"profile"`
	Phone                string  `json:"phone" section:"profile"`
	Address              string  `json:"address" section:"profile"`
	GSTNumber            string  `json:"gstNumber" section:"profile"`
	LogoBase64           *string `json:"logoBase64,omitempty" section:"profile"`
	NotificationsEnabled bool    `json:"notificationsEnabled" section:"profile"`

	Gold24KMargin          float64      `json:"gold24kMargin" section:"rates"`
	Gold22KMargin          float64      `json:"gold22kMargin" section:"rates"`
	Silver999Margin        float64      `json:"silver999Margin" section:"rates"`
	Silver925Margin        float64      `json:"silver925Margin" section:"rates"`
	MakingChargesEnabled   bool         `json:"makingChargesEnabled" section:"rates"`
	MakingCharges24K       MakingCharge `json:"makingCharges24k" section:"rates"`
	MakingCharges22K       MakingCharge `json:"makingCharges22k" section:"rates"`
	MakingChargesSilver999 MakingCharge `json:"makingChargesSilver999" section:"rates"`
	MakingChargesSilver925 MakingCharge `json:"makingChargesSilver925" section:"rates"`
	ShowWithGST            bool         `json:"showWithGST" section:"rates"`
	ApplyGSTToSecondary    bool         `json:"applyGSTToSecondary" section:"rates"`
	PriceDecimalPlaces     int          `json:"priceDecimalPlaces" section:"rates"`
	RatesFrozen            bool         `json:"ratesFrozen" section:"rates"`
	FrozenAt               *time.Time   `json:"frozenAt,omitempty" section:"rates"`

	Theme             string `json:"theme" section:"visual"`
	Layout            string `json:"layout" section:"visual"`
	PrimaryColor      string `json:"primaryColor" section:"visual"`
	AccentColor       string `json:"accentColor" section:"visual"`
	BackgroundColor   string `json:"backgroundColor" section:"visual"`
	TextColor         string `json:"textColor" section:"visual"`
	Gold24KLabel      string `json:"gold24kLabel" section:"visual"`
	Gold22KLabel      string `json:"gold22kLabel" section:"visual"`
	Silver999Label    string `json:"silver999Label" section:"visual"`
	Silver925Label    string `json:"silver925Label" section:"visual"`
	ShowGold24K       bool   `json:"showGold24k" section:"visual"`
	ShowGold22K       bool   `json:"showGold22k" section:"visual"`
	ShowSilver999     bool   `json:"showSilver999" section:"visual"`
	ShowSilver925     bool   `json:"showSilver925" section:"visual"`
	ShowMakingCharges bool   `json:"showMakingCharges" section:"visual"`
	ShowLastUpdated   bool   `json:"showLastUpdated" section:"visual"`
}

// Defaults returns the hard-coded default document.
func Defaults() Config {
	return Config{
		ShopName:             "My Jewellers",
		NotificationsEnabled: true,

		MakingCharges24K:       MakingCharge{Type: MakingChargePercentage, Value: 0, Title: "Making Charges"},
		MakingCharges22K:       MakingCharge{Type: MakingChargePercentage, Value: 0, Title: "Making Charges"},
		MakingChargesSilver999: MakingCharge{Type: MakingChargePerGram, Value: 0, Title: "Making Charges"},
		MakingChargesSilver925: MakingCharge{Type: MakingChargePerGram, Value: 0, Title: "Making Charges"},
		ShowWithGST:            true,
		ApplyGSTToSecondary:    true,
		PriceDecimalPlaces:     0,

		Theme:             "classic",
		Layout:            "grid",
		PrimaryColor:      "#B8860B",
		AccentColor:       "#FFD700",
		BackgroundColor:   "#1A1A1A",
		TextColor:         "#FFFFFF",
		Gold24KLabel:      "Gold 24K (999)",
		Gold22KLabel:      "Gold 22K (916)",
		Silver999Label:    "Silver 999",
		Silver925Label:    "Silver 925",
		ShowGold24K:       true,
		ShowGold22K:       true,
		ShowSilver999:     true,
		ShowSilver925:     true,
		ShowMakingCharges: true,
		ShowLastUpdated:   true,
	}
}

// Validate checks the calculation-relevant fields.
func (c Config) Validate() error {
	if c.PriceDecimalPlaces < 0 || c.PriceDecimalPlaces > 2 {
		return fmt.Errorf("priceDecimalPlaces must be 0, 1 or 2, got %d", c.PriceDecimalPlaces)
	}
	charges := map[string]MakingCharge{
		"makingCharges24k":       c.MakingCharges24K,
		"makingCharges22k":       c.MakingCharges22K,
		"makingChargesSilver999": c.MakingChargesSilver999,
		"makingChargesSilver925": c.MakingChargesSilver925,
	}
	for name, charge := range charges {
		switch charge.Type {
		case MakingChargePercentage, MakingChargePerGram:
		default:
			return fmt.Errorf("%s.type must be %q or %q, got %q", name, MakingChargePercentage, MakingChargePerGram, charge.Type)
		}
	}
	return nil
}

// FieldNames returns the document keys belonging to section, or every key
// when section is empty.
func FieldNames(section Section) []string {
	t := reflect.TypeOf(Config{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if section != "" && Section(field.Tag.Get("section")) != section {
			continue
		}
		names = append(names, jsonName(field))
	}
	return names
}

// ParseSection validates a section name.
func ParseSection(name string) (Section, error) {
	for _, s := range Sections() {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, name)
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return field.Name
	}
	return tag
}
