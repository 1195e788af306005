package view

import "golang.org/x/text/language"

// Strings is the label catalog of one locale.
type Strings struct {
	Title             string
	Subtitle          string
	StageIdle         string
	StageUploading    string
	StageProcessing   string
	StageCompleted    string
	PersonaSarcastic  string
	PersonaTechnical  string
	LatencyCaption    string
	CostCaption       string
	NoValue           string
	UploadHint        string
	SupportedTypes    string
	EmptyConversation string
	QuestionHint      string
}

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

var catalogs = map[language.Tag]Strings{
	language.English: {
		Title:             "Observability-first RAG Workbench",
		Subtitle:          "Enterprise RAG",
		StageIdle:         "Waiting for file",
		StageUploading:    "Uploading",
		StageProcessing:   "Processing",
		StageCompleted:    "Completed",
		PersonaSarcastic:  "Sarcastic",
		PersonaTechnical:  "Extremely technical",
		LatencyCaption:    "Latency",
		CostCaption:       "Cost",
		NoValue:           "–",
		UploadHint:        "Drop the PDF here or click to select",
		SupportedTypes:    "Supports PDF, DOCX, TXT",
		EmptyConversation: "Upload a PDF, choose a persona, and ask a hard question.",
		QuestionHint:      "Ask something specific about the document.",
	},
	language.Spanish: {
		Title:             "Banco de trabajo RAG con observabilidad",
		Subtitle:          "RAG empresarial",
		StageIdle:         "Esperando archivo",
		StageUploading:    "Subiendo",
		StageProcessing:   "Procesando",
		StageCompleted:    "Completado",
		PersonaSarcastic:  "Sarcástico",
		PersonaTechnical:  "Extremadamente técnico",
		LatencyCaption:    "Latencia",
		CostCaption:       "Costo",
		NoValue:           "–",
		UploadHint:        "Suelta el PDF aquí o haz clic para seleccionarlo",
		SupportedTypes:    "Admite PDF, DOCX, TXT",
		EmptyConversation: "Sube un PDF, elige una personalidad y haz una pregunta difícil.",
		QuestionHint:      "Pregunta algo concreto sobre el documento.",
	},
}

// MatchLocale picks the best supported locale for the given preferences,
// each either a tag ("es-MX") or an Accept-Language header value. English
// is the fallback.
func MatchLocale(prefs ...string) language.Tag {
	tag, _ := language.MatchStrings(matcher, prefs...)
	base, _ := tag.Base()
	for _, t := range supported {
		if b, _ := t.Base(); b == base {
			return t
		}
	}
	return language.English
}

// Catalog returns the labels of tag, falling back to English.
func Catalog(tag language.Tag) Strings {
	if s, ok := catalogs[tag]; ok {
		return s
	}
	return catalogs[language.English]
}
