package fallback

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Stop words are stored with apostrophes removed because Normalize strips
// punctuation before the lookup.
var stopWords = setOf(
	"me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your",
	"yours", "yourself", "yourselves", "he", "him", "his", "himself", "she",
	"her", "hers", "herself", "it", "its", "itself", "they", "them", "their",
	"theirs", "themselves", "what", "which", "who", "whom", "this", "that",
	"these", "those", "am", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "having", "do", "does", "did", "doing", "an", "the",
	"and", "but", "if", "or", "because", "as", "until", "while", "of", "at",
	"by", "for", "with", "about", "against", "between", "into", "through",
	"during", "before", "after", "above", "below", "to", "from", "up", "down",
	"in", "out", "on", "off", "over", "under", "again", "further", "then",
	"once", "here", "there", "when", "where", "why", "how", "all", "any",
	"both", "each", "few", "more", "most", "other", "some", "such", "no",
	"nor", "not", "only", "own", "same", "so", "than", "too", "very", "can",
	"will", "just", "should", "now", "im", "ive", "id", "ill", "youre",
	"youve", "dont", "doesnt", "didnt", "isnt", "arent", "wasnt", "werent",
	"cant", "couldnt", "wont", "wouldnt", "shouldnt", "thats", "theres",
	"its", "lets", "gonna", "wanna", "got", "get",
)

var greetingWords = setOf(
	"hello", "hi", "hey", "heya", "hiya", "howdy", "greetings", "sup", "yo",
	"wassup", "whatsup",
)

var farewellWords = setOf(
	"bye", "goodbye", "byebye", "farewell", "goodnight", "cya", "ttyl",
	"laters",
)

// The three keyword sets are disjoint. Absolutist words ("everything",
// "nothing", "always", "never") count toward depression.
var stressKeywords = setOf(
	"stress", "stressed", "stressful", "stressing", "overwhelmed",
	"overwhelming", "pressure", "pressured", "burnout", "burnt", "exhausted",
	"drained", "tired", "deadline", "deadlines", "overworked", "swamped",
	"workload", "frustrated", "hectic", "busy",
)

var anxietyKeywords = setOf(
	"anxious", "anxiety", "worried", "worry", "worrying", "nervous", "panic",
	"panicking", "scared", "afraid", "fear", "fearful", "uneasy", "restless",
	"tense", "dread", "overthinking", "shaky", "jittery", "insecure",
)

var depressionKeywords = setOf(
	"depressed", "depression", "sad", "sadness", "hopeless", "worthless",
	"empty", "lonely", "alone", "numb", "miserable", "unhappy", "crying",
	"cry", "pointless", "useless", "everything", "nothing", "always", "never",
)

const (
	greetingReply = "Hey there! I'm here to chat about whatever's on your mind. How are you feeling today?"
	farewellReply = "Take care! Remember I'm here whenever you need to talk. Stay awesome!"
)

var lowStressResponses = []string{
	"Sounds like you're doing alright! Anything on your mind you wanna talk through?",
	"Love that for you. What's been the best part of your day so far?",
	"I'm all ears, bestie. Tell me more about what's going on.",
	"That's valid. Want to unpack it a little, or just vibe for a bit?",
	"Glad you reached out! What would make today feel even a little better?",
	"Okay, I hear you. How's your energy been lately?",
}

var mediumStressResponses = []string{
	"That sounds like a lot to carry right now. What's weighing on you the most?",
	"Totally understandable to feel that way. Have you had a chance to take a breather today?",
	"You're handling more than you give yourself credit for. Want to break it down into smaller pieces together?",
	"Ugh, that's rough. Try a slow breath in for four, hold for four, out for four. How do you feel after?",
	"It's okay to not have it all figured out. What's one small thing you could take off your plate?",
	"I hear you, and it makes sense you're feeling stretched. Who's someone you trust that you could lean on?",
}

var highStressResponses = []string{
	"I'm really sorry you're going through this. You don't have to handle it alone, and talking to a counselor or someone you trust could really help.",
	"That sounds incredibly heavy. Let's slow down together: breathe in for four, hold for seven, out for eight. I'm right here.",
	"Your feelings are valid and it's okay to ask for help. If things feel unbearable, please reach out to a crisis line or a professional near you.",
	"It sounds like everything is piling up at once. Try grounding yourself: name five things you can see and four you can touch.",
	"I'm so glad you told me. Reaching out to a mental health professional can make a real difference, and you deserve that support.",
	"That's a lot, and you're not weak for feeling it. Is there someone you can be with right now while things feel this intense?",
}
