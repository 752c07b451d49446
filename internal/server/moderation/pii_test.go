package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIDetector_Detect(t *testing.T) {
	d := NewPIIDetector()

	tests := []struct {
		name      string
		text      string
		threshold float64
		want      []PIIType
		redacted  string
	}{
		{"email", "Contact me at a@b.com", 0.7, []PIIType{PIIEmail}, "Contact me at [EMAIL_ADDRESS]"},
		{"street address", "meet me at 123 Orchard Road", 0.7, []PIIType{PIIAddress}, "meet me at [ADDRESS]"},
		{"block address wins over street", "I'm at Blk 456 Ang Mo Kio Ave 3", 0.7, []PIIType{PIIAddress}, "I'm at [ADDRESS] 3"},
		{"local phone", "call me at 91234567", 0.7, []PIIType{PIIPhone}, "call me at [PHONE_NUMBER]"},
		{"international phone", "whatsapp +65 9123 4567", 0.7, []PIIType{PIIPhone}, "whatsapp [PHONE_NUMBER]"},
		{"nric", "my nric is S1234567D", 0.7, []PIIType{PIINRIC}, "my nric is [NRIC_FIN]"},
		{"unit number", "unit #05-123 please", 0.7, []PIIType{PIIUnit}, "unit [UNIT_NUMBER] please"},
		{"postal code", "I live at Singapore 520123", 0.7, []PIIType{PIIPostal}, "I live at Singapore [POSTAL_CODE]"},
		{"postal code denied by chapter", "Read chapter 5 then answer 123456", 0.7, nil, "Read chapter 5 then answer 123456"},
		{"phone denied by invoice", "invoice 91234567 total", 0.7, nil, "invoice 91234567 total"},
		{"phone next to price suppressed", "selling at $150 9123 4567", 0.7, nil, "selling at $150 9123 4567"},
		{"phone away from price kept", "selling at $150, call 9123 4567", 0.7, []PIIType{PIIPhone}, "selling at $150, call [PHONE_NUMBER]"},
		{"area name below default threshold", "I stay near Tampines", 0.7, nil, "I stay near Tampines"},
		{"area name with low threshold", "I stay near Tampines", 0.6, []PIIType{PIIArea}, "I stay near [AREA_NAME]"},
		{"plain text", "see you tomorrow at 3pm", 0.7, nil, "see you tomorrow at 3pm"},
		{"duration before road is not an address", "I waited 20 minutes on the road", 0.7, nil, "I waited 20 minutes on the road"},
		{"count before street is not an address", "there were 3 cars down the street", 0.7, nil, "there were 3 cars down the street"},
		{"spelled out email", "john (at) gmail (dot) com", 0.7, []PIIType{PIIEmail}, "[EMAIL_ADDRESS]"},
		{"spelled out email with multi part domain", "mail john.doe [at] mail [dot] co [dot] uk pls", 0.7, []PIIType{PIIEmail}, "mail [EMAIL_ADDRESS] pls"},
		{"at in prose is not an email", "look (at) this. ok", 0.7, nil, "look (at) this. ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.Detect(tt.text, tt.threshold)

			var got []PIIType
			for _, det := range dets {
				got = append(got, det.Type)
				assert.Equal(t, tt.text[det.Start:det.End], det.Match)
				assert.GreaterOrEqual(t, det.Confidence, tt.threshold)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.redacted, Redact(tt.text, dets))
		})
	}
}

func TestPIIDetector_EmailConfidence(t *testing.T) {
	dets := NewPIIDetector().Detect("Contact me at a@b.com", DefaultThreshold)
	require.Len(t, dets, 1)
	assert.Equal(t, PIIEmail, dets[0].Type)
	assert.GreaterOrEqual(t, dets[0].Confidence, 0.9)
	assert.Equal(t, 14, dets[0].Start)
	assert.Equal(t, 21, dets[0].End)
}

func TestPIIDetector_AddressConfidence(t *testing.T) {
	dets := NewPIIDetector().Detect("meet me at 123 Orchard Road", DefaultThreshold)
	require.Len(t, dets, 1)
	assert.GreaterOrEqual(t, dets[0].Confidence, 0.9)
	assert.Equal(t, "123 Orchard Road", dets[0].Match)
}

func TestPIIDetector_OverlapKeepsHigherConfidence(t *testing.T) {
	// "+65 9123 4567" is an international number (0.9) and contains a
	// formatted local number (0.8).
	dets := NewPIIDetector().Detect("whatsapp +65 9123 4567", DefaultThreshold)
	require.Len(t, dets, 1)
	assert.Equal(t, 0.9, dets[0].Confidence)
	assert.Equal(t, "+65 9123 4567", dets[0].Match)
}

func TestResolveOverlaps(t *testing.T) {
	low := Detection{Type: PIIPostal, Start: 0, End: 10, Confidence: 0.8}
	high := Detection{Type: PIIPhone, Start: 5, End: 15, Confidence: 0.9}
	later := Detection{Type: PIIEmail, Start: 20, End: 30, Confidence: 0.95}
	sameConfLonger := Detection{Type: PIIAddress, Start: 40, End: 60, Confidence: 0.9}
	sameConfShorter := Detection{Type: PIIAddress, Start: 40, End: 50, Confidence: 0.9}

	got := resolveOverlaps([]Detection{low, later, sameConfShorter, high, sameConfLonger})

	assert.Equal(t, []Detection{high, later, sameConfLonger}, got)
}

func TestResolveOverlaps_NoCharacterUsedTwice(t *testing.T) {
	d := NewPIIDetector()
	text := "call 91234567 or +65 8123 4567, blk 12 bedok north road #03-45 S1234567D"
	dets := d.Detect(text, 0.5)

	used := make([]bool, len(text))
	for _, det := range dets {
		for i := det.Start; i < det.End; i++ {
			require.False(t, used[i], "offset %d covered twice", i)
			used[i] = true
		}
	}
	for i := 1; i < len(dets); i++ {
		assert.Less(t, dets[i-1].Start, dets[i].Start)
	}
}

func TestRedact_Idempotent(t *testing.T) {
	d := NewPIIDetector()
	text := "call 91234567 or mail a@b.com"
	dets := d.Detect(text, DefaultThreshold)
	require.Len(t, dets, 2)

	once := Redact(text, dets)
	twice := Redact(text, dets)
	assert.Equal(t, once, twice)
	assert.Equal(t, "call [PHONE_NUMBER] or mail [EMAIL_ADDRESS]", once)
	// the input slice order does not matter
	assert.Equal(t, once, Redact(text, []Detection{dets[1], dets[0]}))
}

func TestPIIDetector_Analyze(t *testing.T) {
	d := NewPIIDetector()

	res := d.Analyze("call 91234567 or mail a@b.com", DefaultThreshold)
	assert.True(t, res.Filtered)
	assert.Equal(t, []string{"PHONE_NUMBER", "EMAIL_ADDRESS"}, res.Detected)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, "call [PHONE_NUMBER] or mail [EMAIL_ADDRESS]", res.Content)

	clean := d.Analyze("hello there", DefaultThreshold)
	assert.False(t, clean.Filtered)
	assert.Equal(t, "hello there", clean.Content)
	assert.Zero(t, clean.Confidence)
	assert.Empty(t, clean.Detected)
}
