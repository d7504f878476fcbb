package generation

import (
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"general", CategoryGeneral, false},
		{"puns", CategoryPuns, false},
		{"knock-knock", CategoryKnockKnock, false},
		{"wordplay", CategoryWordplay, false},
		{"dad-classics", CategoryDadClassics, false},
		{"food", CategoryFood, false},
		{"animals", CategoryAnimals, false},
		{"technology", CategoryTechnology, false},
		{"politics", "", true},
		{"", "", true},
		{"General", "", true}, // case sensitive by design of the wire format
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseHumorLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    HumorLevel
		wantErr bool
	}{
		{"mild", HumorMild, false},
		{"medium", HumorMedium, false},
		{"extra", HumorExtra, false},
		{"savage", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHumorLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHumorLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHumorLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseVoice(t *testing.T) {
	tests := []struct {
		input   string
		want    Voice
		wantErr bool
	}{
		{"dad", VoiceDad, false},
		{"robot", VoiceRobot, false},
		{"dramatic", VoiceDramatic, false},
		{"cheerful", VoiceCheerful, false},
		{"soprano", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVoice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVoice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVoice(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
