package safety

import (
	"familycoach/app/service/tools"
	"fmt"
	"strings"
)

const Disclaimer = "I am an AI assistant and not a substitute for professional medical advice. " +
	"If this is an emergency, please contact your local emergency services immediately."

const fallbackIntro = "I'm sorry, I wasn't able to put together a full reply just now, " +
	"but what you shared matters. Please reach out to someone you trust or to one of the services below."

const fallbackIntroNoServices = "I'm sorry, I wasn't able to put together a full reply just now, " +
	"but what you shared matters. Please reach out to someone you trust."

// EnsureDisclaimer appends the disclaimer unless text already carries it
// verbatim.
func EnsureDisclaimer(text string) string {
	if strings.Contains(text, Disclaimer) {
		return text
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Disclaimer
	}

	return text + "\n\n" + Disclaimer
}

// EnsureResources appends the found providers unless text already
// mentions the phone number of at least one of them.
func EnsureResources(text string, services []tools.Service) string {
	if len(services) == 0 {
		return text
	}

	for _, s := range services {
		if s.Phone != "" && strings.Contains(text, s.Phone) {
			return text
		}
	}

	text = strings.TrimSpace(text)
	if text != "" {
		text += "\n\n"
	}

	return text + FormatServices(services)
}

func FormatServices(services []tools.Service) string {
	var b strings.Builder

	b.WriteString("Help nearby:")
	for _, s := range services {
		fmt.Fprintf(&b, "\n- **%s**: %s, %s", s.Name, s.Phone, s.Address)
	}

	return b.String()
}

// Fallback is shown in place of a model answer when a risk-flagged turn
// could not be completed.
func Fallback(services []tools.Service) string {
	if len(services) == 0 {
		return EnsureDisclaimer(fallbackIntroNoServices)
	}

	return EnsureDisclaimer(fallbackIntro + "\n\n" + FormatServices(services))
}
