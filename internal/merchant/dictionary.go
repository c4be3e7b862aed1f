package merchant

import "regexp"

// Rule is a named textual rewrite applied to a lower-cased counterparty.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

// Dictionary holds the curated data the resolver works from. It is plain
// configuration: tests and deployments can swap any part of it.
type Dictionary struct {
	// Brands are canonical lower-case brand tokens. Multi-word keys
	// ("uber eats") are allowed and win over their single-word prefixes.
	Brands []string

	// GenericPrefixes are words that never identify a merchant on their own
	// ("shop", "store"), and are never used as a deduplication key.
	GenericPrefixes []string

	// PersonalPatterns match counterparties that look like person-to-person
	// transfers. They run against the original, case-preserved text.
	PersonalPatterns []*regexp.Regexp

	// Cleanup rules strip formatting noise, in order.
	Cleanup []Rule

	// SpecialCases unify known spelling variants after cleanup, in order.
	SpecialCases []Rule
}

// DefaultDictionary returns the built-in dictionary, tuned for Polish and
// pan-European card statements.
func DefaultDictionary() Dictionary {
	return Dictionary{
		Brands:           defaultBrands(),
		GenericPrefixes:  defaultGenericPrefixes(),
		PersonalPatterns: defaultPersonalPatterns(),
		Cleanup:          defaultCleanupRules(),
		SpecialCases:     defaultSpecialCases(),
	}
}

func defaultBrands() []string {
	return []string{
		// groceries
		"lidl", "biedronka", "zabka", "carrefour", "auchan", "kaufland",
		"netto", "dino", "stokrotka", "lewiatan", "aldi", "rossmann", "hebe",
		"tesco", "spar", "frisco",
		// food and delivery
		"uber eats", "glovo", "wolt", "pyszne", "mcdonalds", "kfc",
		"burger king", "starbucks", "costa coffee", "subway", "pizza hut",
		"dominos",
		// transport and fuel
		"uber", "bolt", "freenow", "orlen", "bp", "shell", "circle k",
		"pkp intercity", "jakdojade", "ryanair", "wizz air",
		// shopping
		"allegro", "amazon", "zalando", "ikea", "decathlon", "empik",
		"media expert", "rtv euro agd", "x-kom", "castorama", "leroy merlin",
		"aliexpress", "temu", "shein", "h&m", "zara", "reserved", "pepco",
		// subscriptions and digital
		"netflix", "spotify", "youtube", "disney plus", "hbo max",
		"apple", "google", "microsoft", "adobe", "canal plus", "player",
		"tidal", "audible", "patreon", "github", "openai", "dropbox",
		"playstation", "xbox", "steam", "nintendo",
		// utilities and telecom
		"orange", "play", "t-mobile", "upc", "vectra", "pge",
		"tauron", "enea", "energa", "pgnig",
		// health
		"medicover", "luxmed", "enel-med", "superpharm",
		// payments
		"paypal", "revolut",
	}
}

func defaultGenericPrefixes() []string {
	return []string{
		"shop", "store", "market", "sklep", "supermarket", "hipermarket",
		"mini", "super", "kiosk", "stacja", "apteka", "restauracja",
		"bar", "cafe", "kawiarnia", "pizzeria", "online", "www", "the",
		"payment", "platnosc", "zakup", "card", "karta", "pos", "sp", "ltd",
	}
}

func defaultPersonalPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// "Jan Kowalski", "Anna Nowak-Wiśniewska"
		regexp.MustCompile(`^\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+(?:-\p{Lu}\p{Ll}+)?$`),
		// "Jan Maria Kowalski"
		regexp.MustCompile(`^\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+$`),
		regexp.MustCompile(`(?i)\b(?:transfer|przelew)\s+(?:to|from|do|od)\b`),
		regexp.MustCompile(`(?i)\b(?:przelew\s+na\s+telefon|blik\s+p2p|przelew\s+wlasny|przelew\s+własny)\b`),
		regexp.MustCompile(`(?i)\b(?:zwrot\s+za|oddaję|oddaje|za\s+obiad|za\s+bilety)\b`),
		// individual service providers: "Usługi fryzjerskie Anna Nowak", "Dr Jan Kowalski"
		regexp.MustCompile(`(?i)^(?:usługi|uslugi)\s+\p{L}+\s+\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+$`),
		regexp.MustCompile(`^(?:Dr|Lek\.|Mgr|Adw\.|Dr\.)\s+\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+$`),
		regexp.MustCompile(`(?i)\b(?:korepetycje|opiekunka|sprzątanie|sprzatanie)\b`),
	}
}

func defaultCleanupRules() []Rule {
	return []Rule{
		{
			Name:    "marketing-separator",
			Pattern: regexp.MustCompile(`\s*\*+\s*`),
			Replace: " ",
		},
		{
			Name:    "web-prefix",
			Pattern: regexp.MustCompile(`\b(?:https?://)?www\.`),
			Replace: "",
		},
		{
			Name:    "domain-suffix",
			Pattern: regexp.MustCompile(`\.(?:com|pl|eu|net|org|io|de|co\.uk|ie)\b(?:/\S*)?`),
			Replace: "",
		},
		{
			Name:    "legal-entity",
			Pattern: regexp.MustCompile(`\b(?:sp\.?\s*z\s*o\.?\s*o\.?|sp\.?\s*j\.?|sp\.?\s*k\.?|s\.?\s*a\.|s\.?\s*c\.|gmbh|ltd\.?|llc|inc\.?|b\.?v\.|plc|oy|ab)(?:\s|$)`),
			Replace: " ",
		},
		{
			Name:    "city-suffix",
			Pattern: regexp.MustCompile(`\s+(?:warszawa|warsaw|krakow|kraków|wroclaw|wrocław|poznan|poznań|gdansk|gdańsk|gdynia|lodz|łódź|katowice|lublin|szczecin|bydgoszcz|london|dublin|berlin|amsterdam|luxembourg|cork)(?:\s.*)?$`),
			Replace: "",
		},
		{
			Name:    "country-suffix",
			Pattern: regexp.MustCompile(`\s+(?:pol|pl|poland|polska|deu|de|gbr|gb|irl|ie|nld|nl|lux|lu|usa|us)$`),
			Replace: "",
		},
		{
			Name:    "reference-number",
			Pattern: regexp.MustCompile(`(?:\s+|#)[#/\-\d]*\d{3,}[#/\-\d]*`),
			Replace: " ",
		},
		{
			Name:    "whitespace",
			Pattern: regexp.MustCompile(`\s{2,}`),
			Replace: " ",
		},
	}
}

func defaultSpecialCases() []Rule {
	return []Rule{
		{
			Name:    "zabka-diacritics",
			Pattern: regexp.MustCompile(`żabka`),
			Replace: "zabka",
		},
		{
			Name:    "amazon-descriptor",
			Pattern: regexp.MustCompile(`\bamzn(?:\s+mktp)?\b|\bamazon\s+(?:mktp|marketplace|prime)\b`),
			Replace: "amazon",
		},
		{
			Name:    "plus-suffix",
			Pattern: regexp.MustCompile(`\b(disney|canal|apple\s+tv|paramount)\s*\+`),
			Replace: "$1 plus",
		},
	}
}
