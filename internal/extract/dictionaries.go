package extract

import "regexp"

// Dictionary keys must start and end with a word character so the
// word-boundary anchors in dictionary.match behave.

var teamAliases = map[string]string{
	"kansas city chiefs":    "kansas_city_chiefs",
	"chiefs":                "kansas_city_chiefs",
	"philadelphia eagles":   "philadelphia_eagles",
	"eagles":                "philadelphia_eagles",
	"green bay packers":     "green_bay_packers",
	"packers":               "green_bay_packers",
	"dallas cowboys":        "dallas_cowboys",
	"cowboys":               "dallas_cowboys",
	"san francisco 49ers":   "san_francisco_49ers",
	"49ers":                 "san_francisco_49ers",
	"niners":                "san_francisco_49ers",
	"chicago bears":         "chicago_bears",
	"bears":                 "chicago_bears",
	"pittsburgh steelers":   "pittsburgh_steelers",
	"steelers":              "pittsburgh_steelers",
	"new england patriots":  "new_england_patriots",
	"patriots":              "new_england_patriots",
	"seattle seahawks":      "seattle_seahawks",
	"seahawks":              "seattle_seahawks",
	"denver broncos":        "denver_broncos",
	"broncos":               "denver_broncos",
	"buffalo bills":         "buffalo_bills",
	"los angeles lakers":    "los_angeles_lakers",
	"lakers":                "los_angeles_lakers",
	"boston celtics":        "boston_celtics",
	"celtics":               "boston_celtics",
	"golden state warriors": "golden_state_warriors",
	"warriors":              "golden_state_warriors",
	"chicago bulls":         "chicago_bulls",
	"new york yankees":      "new_york_yankees",
	"yankees":               "new_york_yankees",
	"boston red sox":        "boston_red_sox",
	"red sox":               "boston_red_sox",
	"los angeles dodgers":   "los_angeles_dodgers",
	"dodgers":               "los_angeles_dodgers",
	"chicago cubs":          "chicago_cubs",
	"cubs":                  "chicago_cubs",
	"notre dame":            "notre_dame",
	"crimson tide":          "alabama_crimson_tide",
	"buckeyes":              "ohio_state_buckeyes",
}

var holidayAliases = map[string]string{
	"christmas eve":       "christmas_eve",
	"christmas":           "christmas",
	"xmas":                "christmas",
	"halloween":           "halloween",
	"thanksgiving":        "thanksgiving",
	"fourth of july":      "independence_day",
	"4th of july":         "independence_day",
	"july 4th":            "independence_day",
	"independence day":    "independence_day",
	"new year's eve":      "new_years_eve",
	"new years eve":       "new_years_eve",
	"nye":                 "new_years_eve",
	"new year's day":      "new_years_day",
	"new years day":       "new_years_day",
	"valentine's day":     "valentines_day",
	"valentines day":      "valentines_day",
	"valentines":          "valentines_day",
	"st patrick's day":    "st_patricks_day",
	"st patricks day":     "st_patricks_day",
	"saint patrick's day": "st_patricks_day",
	"easter":              "easter",
	"hanukkah":            "hanukkah",
	"chanukah":            "hanukkah",
	"diwali":              "diwali",
	"memorial day":        "memorial_day",
	"labor day":           "labor_day",
	"super bowl":          "super_bowl",
	"game day":            "game_day",
}

var zoneAliases = map[string]string{
	"front of house":     "front_facade",
	"front of the house": "front_facade",
	"back of house":      "back_facade",
	"back of the house":  "back_facade",
	"side of house":      "side_yard",
	"side of the house":  "side_yard",
	"side yard":          "side_yard",
	"front yard":         "front_yard",
	"backyard":           "backyard",
	"back yard":          "backyard",
	"front porch":        "porch",
	"porch":              "porch",
	"front door":         "front_door",
	"front":              "front",
	"roofline":           "roofline",
	"roof line":          "roofline",
	"roof":               "roofline",
	"eaves":              "roofline",
	"gutters":            "roofline",
	"garage":             "garage",
	"driveway":           "driveway",
	"patio":              "patio",
	"deck":               "deck",
	"garden":             "garden",
	"walkway":            "walkway",
	"pathway":            "walkway",
	"fence":              "fence",
	"trees":              "trees",
	"tree":               "trees",
	"windows":            "windows",
	"pool":               "pool",
	"whole house":        "all",
	"entire house":       "all",
	"all lights":         "all",
	"everywhere":         "all",
}

var actionAliases = map[string]string{
	"turn on":    "on",
	"switch on":  "on",
	"light up":   "on",
	"turn off":   "off",
	"switch off": "off",
	"shut off":   "off",
	"dim":        "dim",
	"dimmer":     "dim",
	"brighten":   "brighten",
	"brighter":   "brighten",
	"brightness": "brightness",
	"cancel":     "cancel",
	"delete":     "delete",
	"remove":     "remove",
	"disable":    "disable",
	"stop":       "disable",
	"pause":      "disable",
	"enable":     "enable",
	"resume":     "enable",
	"change":     "change",
	"switch to":  "change",
	"schedule":   "schedule",
	"set up":     "schedule",
	"create":     "schedule",
	"flash":      "flash",
	"strobe":     "flash",
	"blink":      "flash",
	"chase":      "animate",
	"twinkle":    "animate",
	"sparkle":    "animate",
	"animate":    "animate",
	"color":      "color",
	"colors":     "color",
	"colour":     "color",
	"pattern":    "pattern",
	"effect":     "pattern",
	"scene":      "pattern",
}

// CancelActions are the action tokens that retract an existing schedule.
var CancelActions = []string{"cancel", "delete", "remove", "disable"}

var (
	teamDict    = newDictionary(teamAliases)
	holidayDict = newDictionary(holidayAliases)
	zoneDict    = newDictionary(zoneAliases)
	actionDict  = newDictionary(actionAliases)
)

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december`

var monthAbbrev = map[string]string{
	"jan": "january", "feb": "february", "mar": "march", "apr": "april",
	"jun": "june", "jul": "july", "aug": "august", "sep": "september",
	"sept": "september", "oct": "october", "nov": "november", "dec": "december",
}

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5", "six": "6", "seven": "7",
	"eight": "8", "nine": "9", "ten": "10", "eleven": "11", "twelve": "12", "fourteen": "14",
	"twenty": "20", "thirty": "30",
}

const numberPattern = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fourteen|twenty|thirty)`

// tokenPattern maps a phrase pattern to an output token. A "%s" in the token
// is replaced with the first capture group.
type tokenPattern struct {
	re    *regexp.Regexp
	token string
}

// Relative date phrases, longest first.
var relativeDates = []tokenPattern{
	{regexp.MustCompile(`\btomorrow night\b`), "tomorrow_night"},
	{regexp.MustCompile(`\btomorrow morning\b`), "tomorrow_morning"},
	{regexp.MustCompile(`\btomorrow evening\b`), "tomorrow_evening"},
	{regexp.MustCompile(`\bday after tomorrow\b`), "day_after_tomorrow"},
	{regexp.MustCompile(`\bnext weekend\b`), "next_weekend"},
	{regexp.MustCompile(`\bthis weekend\b`), "this_weekend"},
	{regexp.MustCompile(`\bnext week\b`), "next_week"},
	{regexp.MustCompile(`\bthis week\b`), "this_week"},
	{regexp.MustCompile(`\bnext month\b`), "next_month"},
	{regexp.MustCompile(`\bthis evening\b`), "today"},
	{regexp.MustCompile(`\btomorrow\b`), "tomorrow"},
	{regexp.MustCompile(`\btonight\b`), "tonight"},
	{regexp.MustCompile(`\btoday\b`), "today"},
}

var (
	fullWeekdays  = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)s?\b`)
	shortWeekdays = regexp.MustCompile(`\b(sun|mon|tues?|wed|thu|thurs?|fri|sat)\b`)
	calendarDate  = regexp.MustCompile(`\b(` + monthNames + `|jan|feb|mar|apr|jun|jul|aug|sept?|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	numericDate   = regexp.MustCompile(`\b(1[0-2]|0?[1-9])/(3[01]|[12]\d|0?[1-9])\b`)
)

var shortWeekdayNames = map[string]string{
	"sun": "sunday", "mon": "monday", "tue": "tuesday", "tues": "tuesday", "wed": "wednesday",
	"thu": "thursday", "thur": "thursday", "thurs": "thursday", "fri": "friday", "sat": "saturday",
}

var (
	clockTime12 = regexp.MustCompile(`\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*(a\.m\.|p\.m\.|am\b|pm\b)`)
	clockTime24 = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
)

var solarKeywords = []tokenPattern{
	{regexp.MustCompile(`\b(?:sunset|sundown|dusk|nightfall|twilight)\b`), "sunset"},
	{regexp.MustCompile(`\b(?:sunrise|sunup|dawn|daybreak|first light)\b`), "sunrise"},
	{regexp.MustCompile(`\b(?:noon|midday)\b`), "12:00"},
	{regexp.MustCompile(`\bmidnight\b`), "00:00"},
	{regexp.MustCompile(`\bafter dark\b`), "sunset"},
}

// Duration phrases in priority order; first match wins.
var durationPatterns = []tokenPattern{
	{regexp.MustCompile(`\b(?:all|whole|entire) (?:of )?(?:the )?month\b`), "all_month"},
	{regexp.MustCompile(`\b(?:all|whole|entire) (?:of )?(?:the )?week\b`), "all_week"},
	{regexp.MustCompile(`\b(?:all|whole|entire|the) (?:holiday )?season\b`), "all_season"},
	{regexp.MustCompile(`\b(?:through|thru|until|till) (?:the end of )?(` + monthNames + `)\b`), "through_%s"},
	{regexp.MustCompile(`\b(?:through|thru|until|till) (?:the )?end of (?:the )?month\b`), "through_month_end"},
	{regexp.MustCompile(`\b` + numberPattern + ` (?:days|nights)\b`), "%s_days"},
	{regexp.MustCompile(`\b` + numberPattern + ` weeks\b`), "%s_weeks"},
	{regexp.MustCompile(`\bfor (?:a|one) week\b`), "1_weeks"},
	{regexp.MustCompile(`\b(?:just|only) (?:for )?tonight\b|\btonight only\b|\bjust once\b`), "once"},
}

// Recurrence phrases in priority order; first match wins.
var recurrencePatterns = []tokenPattern{
	{regexp.MustCompile(`\bevery other (?:day|night)\b`), "every_other_day"},
	{regexp.MustCompile(`\bevery (?:night|evening)\b|\bnightly\b|\beach (?:night|evening)\b`), "every_night"},
	{regexp.MustCompile(`\bevery morning\b|\beach morning\b`), "every_morning"},
	{regexp.MustCompile(`\bweekdays\b|\bevery weekday\b`), "weekdays"},
	{regexp.MustCompile(`\bweekends\b|\bevery weekend\b`), "weekends"},
	{regexp.MustCompile(`\bevery ?day\b|\bdaily\b|\beach day\b`), "daily"},
	{regexp.MustCompile(`\bevery (sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`), "every_%s"},
	{regexp.MustCompile(`\b(?:on )?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)s\b`), "every_%s"},
	{regexp.MustCompile(`\bevery week\b|\bweekly\b`), "weekly"},
	{regexp.MustCompile(`\bgame days\b|\bevery game\b`), "game_days"},
}

// Variation markers in priority order; first match wins.
var variationPatterns = []tokenPattern{
	{regexp.MustCompile(`\bdifferent (?:\w+ )?(?:each|every) (?:night|day|evening)\b|\bdifferent (?:each|every) time\b`), "different_each_night"},
	{regexp.MustCompile(`\brotat(?:e|es|ing|ion)\b|\bcycle through\b|\balternat(?:e|es|ing)\b`), "rotate"},
	{regexp.MustCompile(`\bsurprise\b`), "surprise"},
	{regexp.MustCompile(`\brandom(?:ly|ize)?\b|\bshuffle\b|\bmix it up\b`), "random"},
	{regexp.MustCompile(`\bvary\b|\bvariety\b|\bchange it up\b`), "vary"},
}

// Coarse time-of-day buckets in priority order; first match wins.
var timeOfDayPatterns = []tokenPattern{
	{regexp.MustCompile(`\b(?:night|tonight|nightly|overnight|midnight|late)\b`), "night"},
	{regexp.MustCompile(`\b(?:morning|mornings|dawn|sunrise|daybreak|wake up)\b`), "morning"},
	{regexp.MustCompile(`\b(?:afternoon|noon|midday|lunch)\b`), "afternoon"},
	{regexp.MustCompile(`\b(?:evening|evenings|sunset|dusk|dinner|after dark)\b`), "evening"},
}
