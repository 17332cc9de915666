package intent

import "testing"

func TestMapTable(t *testing.T) {
	cases := []struct {
		label string
		want  Category
	}{
		{"activar lector de carteles", SignReader},
		{"activar_lector", SignReader},
		{"lee el cartel", SignReader}, // sign-reader outranks reading
		{"texto más grande", TextSize},
		{"aumenta la letra", TextSize},
		{"activa el sonido", VoiceToggle},
		{"silenciar", VoiceToggle},
		{"haz zoom", Zoom},
		{"repite eso", Repeat},
		{"otra vez", Repeat},
		{"cómo uso la cámara", CameraHelp},
		{"cuánto es este billete", Money},
		{"qué hay delante", Objects},
		{"a qué distancia está", Depth},
		{"lee el documento", Reading},
		{"qué hora es", Time},
		{"cómo está el clima", Weather},
		{"abre el menú", Menu},
		{"sube el volumen", Unknown},
		{"", Unknown},
		{"xyzzy", Unknown},
	}

	for _, tc := range cases {
		if got := Map(tc.label); got != tc.want {
			t.Errorf("Map(%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}

func TestMapIsCaseAndWhitespaceInvariant(t *testing.T) {
	variants := []string{
		"activar lector de carteles",
		"  ACTIVAR LECTOR DE CARTELES  ",
		"Activar Lector De Carteles",
		"\tactivar lector de carteles\n",
	}
	for _, v := range variants {
		if got := Map(v); got != SignReader {
			t.Errorf("Map(%q) = %v, want %v", v, got, SignReader)
		}
	}
}

func TestMapIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if got := Map("repetir la última frase"); got != Repeat {
			t.Fatalf("iteration %d: got %v", i, got)
		}
	}
}
