package usage

import "golang.org/x/text/language"

// Upgrade hints shown alongside a LIMIT_REACHED denial, selected by tier and
// request locale.
var upgradeMessages = map[string]map[string]string{
	TierAnonymous: {
		"en": "Sign up for a free account to get more generations.",
		"id": "Daftar akun gratis untuk mendapatkan lebih banyak generasi.",
	},
	TierFree: {
		"en": "Upgrade to the Base plan or buy credits to keep generating.",
		"id": "Tingkatkan ke paket Base atau beli kredit untuk terus membuat gambar.",
	},
	TierBase: {
		"en": "Your monthly pool is used up. Buy credits to keep generating.",
		"id": "Kuota bulanan Anda habis. Beli kredit untuk terus membuat gambar.",
	},
}

var supportedLangs = []string{"en", "id"}

var messageMatcher = language.NewMatcher([]language.Tag{
	language.English, // fallback
	language.Indonesian,
})

// UpgradeMessage returns the human-readable upgrade hint for a tier in the
// closest supported language to the requested locale.
func UpgradeMessage(tier, locale string) string {
	_, index := language.MatchStrings(messageMatcher, locale)
	lang := supportedLangs[index]
	byLang, ok := upgradeMessages[tier]
	if !ok {
		byLang = upgradeMessages[TierFree]
	}
	return byLang[lang]
}
