package rules

import (
	"fmt"
	"time"
)

// Messages renders alert text for one locale.
type Messages struct {
	successCollapse string
	refusalSpike    string
	criticalCode    string
	issuerSpike     string
	channelSpike    string
	missingChannel  string
	staleData       string
	noTimestamps    string
	instability     string
}

var locales = map[string]Messages{
	"fr": {
		successCollapse: "Alerte Critique: Le taux de reussite est tombe a %.2f%%!",
		refusalSpike:    "Alerte: Le taux de refus est eleve a %.2f%%!",
		criticalCode:    "Alerte Critique: Code de refus frequent %d avec %d occurrences!",
		issuerSpike:     "Alerte: Le taux de refus de l'emetteur %s est eleve a %.2f%%!",
		channelSpike:    "Alerte: Le taux de refus du canal %s est eleve a %.2f%%!",
		missingChannel:  "Alerte: Aucune transaction sur le canal %s!",
		staleData:       "Alerte Critique: Aucune nouvelle transaction depuis %.2f minutes (derniere a %s)!",
		noTimestamps:    "Alerte Critique: Aucune transaction horodatee disponible!",
		instability:     "Alerte Critique: Il y a un probleme dans le systeme, intervalles de 30s ou 60s detectes!",
	},
	"en": {
		successCollapse: "Critical alert: success rate dropped to %.2f%%!",
		refusalSpike:    "Alert: refusal rate is high at %.2f%%!",
		criticalCode:    "Critical alert: frequent refusal code %d with %d occurrences!",
		issuerSpike:     "Alert: refusal rate for issuer %s is high at %.2f%%!",
		channelSpike:    "Alert: refusal rate for channel %s is high at %.2f%%!",
		missingChannel:  "Alert: no transactions on channel %s!",
		staleData:       "Critical alert: no new transaction for %.2f minutes (last at %s)!",
		noTimestamps:    "Critical alert: no timestamped transaction available!",
		instability:     "Critical alert: the system has a problem, 30s or 60s intervals detected!",
	},
}

// MessagesFor returns the catalog for locale, defaulting to French.
func MessagesFor(locale string) Messages {
	if m, ok := locales[locale]; ok {
		return m
	}
	return locales["fr"]
}

func (m Messages) SuccessCollapse(rate float64) string { return fmt.Sprintf(m.successCollapse, rate) }
func (m Messages) RefusalSpike(rate float64) string    { return fmt.Sprintf(m.refusalSpike, rate) }

func (m Messages) CriticalCode(code, count int) string {
	return fmt.Sprintf(m.criticalCode, code, count)
}

func (m Messages) IssuerSpike(issuer string, rate float64) string {
	return fmt.Sprintf(m.issuerSpike, issuer, rate)
}

func (m Messages) ChannelSpike(channel string, rate float64) string {
	return fmt.Sprintf(m.channelSpike, channel, rate)
}

func (m Messages) MissingChannel(channel string) string {
	return fmt.Sprintf(m.missingChannel, channel)
}

func (m Messages) StaleData(minutes float64, last time.Time) string {
	return fmt.Sprintf(m.staleData, minutes, last.Format("2006-01-02 15:04:05"))
}

func (m Messages) NoTimestamps() string { return m.noTimestamps }
func (m Messages) Instability() string  { return m.instability }
