package segment

import "golang.org/x/text/language"

// abbrevList holds lower-cased tokens that end in a full stop.
type abbrevList struct {
	// always never end a sentence (titles, "e.g.").
	always []string
	// medial often end a sentence too ("etc.", "no."); they only join the
	// next span when it starts with a lower-case letter or a digit.
	medial []string
}

// Keys are base languages.
var abbreviations = map[language.Base]abbrevList{
	language.MustParseBase("en"): {
		always: []string{"mr.", "mrs.", "ms.", "dr.", "prof.", "sr.", "e.g.", "i.e."},
		medial: []string{"jr.", "st.", "vs.", "etc.", "approx.", "no.", "inc.", "ltd."},
	},
	language.MustParseBase("de"): {
		always: []string{
			"z.", "z. b.", "z.b.", "d. h.", "d.h.", "bzw.", "ca.", "dr.",
			"hr.", "fr.", "nr.", "vgl.", "evtl.", "ggf.", "inkl.",
		},
		medial: []string{"d.", "u. a.", "usw."},
	},
	language.MustParseBase("cs"): {
		always: []string{
			"např.", "tzn.", "tj.", "resp.", "mj.", "pí.", "ing.", "mgr.",
			"dr.", "čís.", "str.", "cca.",
		},
		medial: []string{"p.", "apod.", "atd."},
	},
}

func abbreviationsFor(tag language.Tag) abbrevList {
	base, conf := tag.Base()
	if conf == language.No {
		return abbrevList{}
	}
	return abbreviations[base]
}
