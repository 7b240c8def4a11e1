package enrich

import (
	"strings"

	"github.com/TobiSchelling/electwatch/internal/database"
)

var flagTypeAliases = map[string]string{
	"LEGAL_ISSUE":     database.FlagPenalSentence,
	"CRIMINAL":        database.FlagPenalSentence,
	"CRIMINAL_RECORD": database.FlagPenalSentence,
	"SENTENCE":        database.FlagPenalSentence,
	"PENAL_SENTENCE":  database.FlagPenalSentence,

	"CIVIL":          database.FlagCivilSentence,
	"CIVIL_CASE":     database.FlagCivilSentence,
	"LAWSUIT":        database.FlagCivilSentence,
	"CIVIL_SENTENCE": database.FlagCivilSentence,

	"CORRUPTION":    database.FlagInvestigation,
	"INVESTIGATION": database.FlagInvestigation,
	"FRAUD":         database.FlagInvestigation,

	"PARTY_SWITCH":    database.FlagPartySwitching,
	"PARTY_SWITCHING": database.FlagPartySwitching,
	"TRANSFUGUISMO":   database.FlagPartySwitching,

	"FINANCIAL":              database.FlagFinancialIrregularity,
	"UNDECLARED_ASSETS":      database.FlagFinancialIrregularity,
	"CAMPAIGN_FINANCE":       database.FlagFinancialIrregularity,
	"FINANCIAL_IRREGULARITY": database.FlagFinancialIrregularity,

	"MISINFORMATION": database.FlagMisinformation,
	"FAKE_NEWS":      database.FlagMisinformation,
	"DISINFORMATION": database.FlagMisinformation,
}

// flagTitles are fixed per type so reprocessing a mention cannot add a
// second flag of the same type.
var flagTitles = map[string]string{
	database.FlagPenalSentence:         "Posible antecedente penal reportado en medios",
	database.FlagCivilSentence:         "Posible proceso civil reportado en medios",
	database.FlagInvestigation:         "Investigación o denuncia reportada en medios",
	database.FlagPartySwitching:        "Cambio de partido reportado en medios",
	database.FlagFinancialIrregularity: "Posible irregularidad financiera reportada en medios",
	database.FlagMisinformation:        "Posible desinformación atribuida al candidato",
	database.FlagOther:                 "Otra alerta reportada en medios",
}

// MapFlagType maps a free-text flag type from the analysis service onto the
// fixed taxonomy. Unknown types map to OTHER.
func MapFlagType(raw string) string {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if t, ok := flagTypeAliases[key]; ok {
		return t
	}
	return database.FlagOther
}
