package language

import "strings"

// Auto is the whisper setting that lets the model detect the spoken language.
const Auto = "auto"

type entry struct {
	iso2    string
	iso3    []string
	display string
}

var known = []entry{
	{"en", []string{"eng"}, "English"},
	{"es", []string{"spa"}, "Spanish"},
	{"fr", []string{"fra", "fre"}, "French"},
	{"de", []string{"deu", "ger"}, "German"},
	{"it", []string{"ita"}, "Italian"},
	{"pt", []string{"por"}, "Portuguese"},
	{"ja", []string{"jpn"}, "Japanese"},
	{"ko", []string{"kor"}, "Korean"},
	{"zh", []string{"zho", "chi"}, "Chinese"},
	{"ru", []string{"rus"}, "Russian"},
	{"uk", []string{"ukr"}, "Ukrainian"},
	{"ar", []string{"ara"}, "Arabic"},
	{"hi", []string{"hin"}, "Hindi"},
	{"tr", []string{"tur"}, "Turkish"},
	{"nl", []string{"nld", "dut"}, "Dutch"},
	{"pl", []string{"pol"}, "Polish"},
	{"cs", []string{"ces", "cze"}, "Czech"},
	{"sv", []string{"swe"}, "Swedish"},
	{"da", []string{"dan"}, "Danish"},
	{"no", []string{"nor"}, "Norwegian"},
	{"fi", []string{"fin"}, "Finnish"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(known)*4)
	for i := range known {
		e := &known[i]
		m[e.iso2] = e
		m[strings.ToLower(e.display)] = e
		for _, code := range e.iso3 {
			m[code] = e
		}
	}
	return m
}()

func lookup(value string) *entry {
	return index[strings.ToLower(strings.TrimSpace(value))]
}

// ToISO2 converts a two or three letter code or an English language name to
// its ISO 639-1 code. Unknown two-letter codes pass through lowercased since
// whisper supports more languages than this table lists; anything else
// unrecognized yields "".
func ToISO2(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if e := lookup(value); e != nil {
		return e.iso2
	}
	if len(value) == 2 {
		return value
	}
	return ""
}

// DisplayName renders a configured transcription language for humans.
func DisplayName(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "", strings.EqualFold(value, Auto):
		return "Auto-detect"
	}
	if e := lookup(value); e != nil {
		return e.display
	}
	return strings.ToUpper(value)
}
