package sentiment

import "strings"

// entry holds the polarity and subjectivity a lexicon word contributes.
// Polarity runs from -1 (strongly negative) to +1, subjectivity from 0
// (factual) to 1 (opinion).
type entry struct {
	polarity     float64
	subjectivity float64
}

// lexicon covers the Italian and English vocabulary that shows up in field
// visit notes. Coverage is intentionally narrow: words outside the lexicon
// carry no signal.
var lexicon = map[string]entry{
	// positive
	"ottimo":         {0.9, 0.8},
	"ottima":         {0.9, 0.8},
	"eccellente":     {0.9, 0.8},
	"excellent":      {0.9, 0.8},
	"buono":          {0.6, 0.6},
	"buona":          {0.6, 0.6},
	"good":           {0.6, 0.6},
	"great":          {0.8, 0.7},
	"positivo":       {0.6, 0.6},
	"positiva":       {0.6, 0.6},
	"positive":       {0.6, 0.6},
	"soddisfatto":    {0.7, 0.8},
	"soddisfatta":    {0.7, 0.8},
	"soddisfazione":  {0.7, 0.8},
	"satisfied":      {0.7, 0.8},
	"interessato":    {0.5, 0.6},
	"interessata":    {0.5, 0.6},
	"interested":     {0.5, 0.6},
	"interesse":      {0.4, 0.5},
	"entusiasta":     {0.8, 0.9},
	"enthusiastic":   {0.8, 0.9},
	"apprezzato":     {0.6, 0.7},
	"apprezzata":     {0.6, 0.7},
	"apprezza":       {0.6, 0.7},
	"efficace":       {0.6, 0.5},
	"effective":      {0.6, 0.5},
	"migliorato":     {0.5, 0.4},
	"migliorata":     {0.5, 0.4},
	"miglioramento":  {0.5, 0.4},
	"improvement":    {0.5, 0.4},
	"disponibile":    {0.3, 0.4},
	"favorevole":     {0.5, 0.6},
	"promettente":    {0.5, 0.6},
	"promising":      {0.5, 0.6},
	"successo":       {0.7, 0.6},
	"success":        {0.7, 0.6},
	"felice":         {0.8, 0.9},
	"happy":          {0.8, 0.9},
	"convinto":       {0.4, 0.7},
	"convinta":       {0.4, 0.7},
	"fiducia":        {0.5, 0.6},
	"trust":          {0.5, 0.6},
	"collaborativo":  {0.4, 0.5},
	"collaborativa":  {0.4, 0.5},

	// negative
	"pessimo":        {-0.9, 0.8},
	"pessima":        {-0.9, 0.8},
	"terrible":       {-0.9, 0.8},
	"cattivo":        {-0.6, 0.6},
	"cattiva":        {-0.6, 0.6},
	"bad":            {-0.6, 0.6},
	"negativo":       {-0.6, 0.6},
	"negativa":       {-0.6, 0.6},
	"negative":       {-0.6, 0.6},
	"insoddisfatto":  {-0.7, 0.8},
	"insoddisfatta":  {-0.7, 0.8},
	"dissatisfied":   {-0.7, 0.8},
	"problema":       {-0.5, 0.4},
	"problemi":       {-0.5, 0.4},
	"problem":        {-0.5, 0.4},
	"problems":       {-0.5, 0.4},
	"difficile":      {-0.4, 0.5},
	"difficult":      {-0.4, 0.5},
	"difficoltà":     {-0.4, 0.5},
	"preoccupato":    {-0.5, 0.7},
	"preoccupata":    {-0.5, 0.7},
	"preoccupazione": {-0.5, 0.7},
	"concerned":      {-0.5, 0.7},
	"worried":        {-0.5, 0.7},
	"scettico":       {-0.4, 0.7},
	"scettica":       {-0.4, 0.7},
	"skeptical":      {-0.4, 0.7},
	"rifiutato":      {-0.7, 0.6},
	"rifiutata":      {-0.7, 0.6},
	"rifiuta":        {-0.7, 0.6},
	"rejected":       {-0.7, 0.6},
	"lamentela":      {-0.6, 0.6},
	"lamentele":      {-0.6, 0.6},
	"complaint":      {-0.6, 0.6},
	"complaints":     {-0.6, 0.6},
	"deluso":         {-0.7, 0.8},
	"delusa":         {-0.7, 0.8},
	"disappointed":   {-0.7, 0.8},
	"peggiorato":     {-0.5, 0.4},
	"peggiorata":     {-0.5, 0.4},
	"peggioramento":  {-0.5, 0.4},
	"inefficace":     {-0.6, 0.5},
	"ineffective":    {-0.6, 0.5},
	"costoso":        {-0.3, 0.5},
	"costosa":        {-0.3, 0.5},
	"expensive":      {-0.3, 0.5},
	"carenza":        {-0.4, 0.3},
	"shortage":       {-0.4, 0.3},
	"ostile":         {-0.7, 0.8},
	"hostile":        {-0.7, 0.8},
	"perso":          {-0.5, 0.4},
	"persa":          {-0.5, 0.4},
	"lost":           {-0.5, 0.4},
}

// negators flip the sign of the sentiment word that follows them.
var negators = map[string]bool{
	"non": true, "no": true, "not": true,
	"mai": true, "never": true, "senza": true, "without": true,
}

// intensifiers amplify the sentiment word that follows them.
var intensifiers = map[string]float64{
	"molto": 1.3, "very": 1.3,
	"estremamente": 1.5, "extremely": 1.5,
	"davvero": 1.3, "really": 1.3,
	"poco": 0.5, "slightly": 0.5,
}

// Score computes the heuristic polarity and subjectivity of text as the
// average contribution of matched lexicon words, with negation and
// intensity handling. Unmatched text scores (0, 0).
func Score(text string) (polarity, subjectivity float64) {
	words := tokenize(text)

	var polSum, subSum float64
	var matched int
	// A negator flips the next lexicon word within a three-token window,
	// so "non è soddisfatto" still reads as negative.
	negateWindow := 0
	intensity := 1.0

	for _, w := range words {
		if negateWindow > 0 {
			negateWindow--
		}
		if negators[w] {
			negateWindow = 3
			continue
		}
		if f, ok := intensifiers[w]; ok {
			intensity = f
			continue
		}
		e, ok := lexicon[w]
		if !ok {
			intensity = 1.0
			continue
		}
		p := e.polarity * intensity
		if negateWindow > 0 {
			p = -p
			negateWindow = 0
		}
		polSum += clamp(p)
		subSum += e.subjectivity
		matched++
		intensity = 1.0
	}

	if matched == 0 {
		return 0, 0
	}
	return polSum / float64(matched), subSum / float64(matched)
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '\'' || r == 'à' || r == 'è' || r == 'é' || r == 'ì' ||
		r == 'ò' || r == 'ù' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
