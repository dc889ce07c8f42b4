package presentation

import "fencetrack/pkg/sensor"

// Texts is the copy of the violation notice.
type Texts struct {
	Title  string `yaml:"title" json:"title"`
	Body   string `yaml:"body" json:"body"`
	Button string `yaml:"button" json:"button"`
}

// DefaultTexts returns the Dutch notice copy.
func DefaultTexts() Texts {
	return Texts{
		Title:  "Kom naar Heerlen",
		Body:   "Deze functie is alleen beschikbaar binnen de blauwe cirkel op de kaart. Kom naar het centrum van Heerlen om de interactieve kaart te gebruiken!",
		Button: "Ik kom er aan!",
	}
}

var errorMessages = map[int]string{
	1: "Locatie toegang geweigerd. Schakel het in bij je instellingen.",
	2: "Locatie niet beschikbaar. Controleer je apparaat instellingen.",
	3: "Verzoek verlopen. Probeer opnieuw.",
}

const defaultErrorMessage = "Er is een fout opgetreden bij het ophalen van je locatie."

// MessageForCode returns the localized message for a W3C geolocation error code.
func MessageForCode(code int) string {
	if m, ok := errorMessages[code]; ok {
		return m
	}
	return defaultErrorMessage
}

// MessageFor returns the localized message for a sensor failure.
func MessageFor(err error) string {
	return MessageForCode(sensor.KindOf(err).Code())
}
