// Package intent maps recognized utterance labels to the closed set of
// command categories the dispatcher acts on. Mapping is a pure function
// over a fixed ordered keyword table: no state, no side effects.
package intent

import "strings"

// Category is a command intent group. Dispatchers must treat any value
// outside this set as Unknown, never as a fault.
type Category string

const (
	SignReader  Category = "sign_reader"
	TextSize    Category = "text_size"
	VoiceToggle Category = "voice_toggle"
	Zoom        Category = "zoom"
	Repeat      Category = "repeat"
	CameraHelp  Category = "camera_help"
	Money       Category = "money"
	Objects     Category = "objects"
	Depth       Category = "depth"
	Reading     Category = "reading"
	Time        Category = "time"
	Weather     Category = "weather"
	Menu        Category = "menu"
	Unknown     Category = "unknown"
)

type keywordGroup struct {
	category Category
	keywords []string
}

// keywordTable is ordered: the first group containing a matching keyword
// wins. Keywords are lower-case; Map lower-cases the label before testing.
var keywordTable = []keywordGroup{
	{SignReader, []string{"cartel", "letrero", "señal", "lector"}},
	{TextSize, []string{"tamaño", "más grande", "mas grande", "más pequeño", "mas pequeño", "letra"}},
	{VoiceToggle, []string{"voz", "silenciar", "activa el sonido", "desactiva el sonido"}},
	{Zoom, []string{"zoom", "ampliar", "acerca", "aleja", "aumenta"}},
	{Repeat, []string{"repite", "repetir", "otra vez", "de nuevo"}},
	{CameraHelp, []string{"cámara", "camara", "ayuda", "cómo uso", "como uso"}},
	{Money, []string{"dinero", "billete", "moneda", "cuánto es", "cuanto es"}},
	{Objects, []string{"objeto", "qué hay", "que hay", "delante", "identifica"}},
	{Depth, []string{"distancia", "profundidad", "cerca", "lejos"}},
	{Reading, []string{"lee", "leer", "lectura", "documento", "texto"}},
	{Time, []string{"hora", "qué hora", "que hora"}},
	{Weather, []string{"clima", "tiempo", "lluvia", "temperatura"}},
	{Menu, []string{"menú", "menu", "opciones", "inicio", "principal"}},
}

// Map resolves a raw classifier label to its intent category. The label is
// lower-cased and trimmed first; labels with no recognized keyword map to
// Unknown.
func Map(label string) Category {
	normalized := strings.ToLower(strings.TrimSpace(label))
	// Model labels use underscores between words.
	normalized = strings.ReplaceAll(normalized, "_", " ")
	if normalized == "" {
		return Unknown
	}
	for _, group := range keywordTable {
		for _, keyword := range group.keywords {
			if strings.Contains(normalized, keyword) {
				return group.category
			}
		}
	}
	return Unknown
}
