package deepgram

type deepgramVoice string

// ParseVoice converts a configured voice name, e.g. "aura-2-thalia-en".
func ParseVoice(name string) deepgramVoice { return deepgramVoice(name) }

const (
	VoiceAsteria   deepgramVoice = "aura-asteria-en"
	VoiceLuna      deepgramVoice = "aura-luna-en"
	VoiceStella    deepgramVoice = "aura-stella-en"
	VoiceAthena    deepgramVoice = "aura-athena-en"
	VoiceHera      deepgramVoice = "aura-hera-en"
	VoiceOrion     deepgramVoice = "aura-orion-en"
	VoiceArcas     deepgramVoice = "aura-arcas-en"
	VoicePerseus   deepgramVoice = "aura-perseus-en"
	VoiceAngus     deepgramVoice = "aura-angus-en"
	VoiceOrpheus   deepgramVoice = "aura-orpheus-en"
	VoiceHelios    deepgramVoice = "aura-helios-en"
	VoiceZeus      deepgramVoice = "aura-zeus-en"
	VoiceThalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAndromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceApollo    deepgramVoice = "aura-2-apollo-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAsteria,
		VoiceLuna,
		VoiceStella,
		VoiceAthena,
		VoiceHera,
		VoiceOrion,
		VoiceArcas,
		VoicePerseus,
		VoiceAngus,
		VoiceOrpheus,
		VoiceHelios,
		VoiceZeus,
		VoiceThalia,
		VoiceAndromeda,
		VoiceApollo,
	}
}
