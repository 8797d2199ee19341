package dialogue

import (
	"fmt"
	"strings"
)

// interviewerPrompt is the system instruction for free-form exchanges.
func interviewerPrompt(topic, difficulty string) string {
	return fmt.Sprintf(`You are a professional technical interviewer conducting a spoken %s level interview about %s.
Respond to the candidate's last answer in two to four sentences: acknowledge it briefly, give one concrete point of feedback, then ask the next question.
Ask exactly one question at a time and increase depth when the candidate answers well.
Your reply is read aloud by a speech synthesizer, so use plain sentences without markdown, lists or code blocks.`, difficulty, topic)
}

// exchangeMessage renders the user turn sent for one exchange.
func exchangeMessage(userText, conversation string) string {
	if strings.TrimSpace(conversation) == "" {
		return "Candidate: " + userText
	}
	return "Recent conversation:\n" + conversation + "\n\nCandidate: " + userText
}

const analysisPrompt = `You evaluate mock technical interviews.
Reply with a single JSON object and nothing else, using exactly these fields:
- "clarity" (integer 0-100): how clear and well-structured the answers are
- "relevance" (integer 0-100): how relevant the answers are to the questions
- "technicalAccuracy" (integer 0-100): technical correctness of the answers
- "confidence" (integer 0-100): perceived confidence level
- "feedback" (array of strings): constructive feedback points
- "improvements" (array of strings): suggested improvements
- "strengths" (array of strings): what the candidate did well
- "overallAssessment" (string): a short overall verdict`

func analysisMessage(topic, transcript string) string {
	return fmt.Sprintf("Analyze this interview for a %s position.\n\nTranscript:\n%s", topic, transcript)
}

// Greeting is the first utterance of an interview.
func Greeting(topic, difficulty string) string {
	return fmt.Sprintf("Hello, and welcome to your %s interview on %s. "+
		"I'll ask you a series of questions; take your time and answer out loud. "+
		"To start, could you briefly introduce yourself and your experience with %s?",
		strings.ToLower(difficulty), topic, topic)
}

// Closing is the last utterance, spoken when the interview ends.
func Closing(topic string) string {
	return fmt.Sprintf("Thank you, that concludes our %s interview. "+
		"Your session has been saved so you can review it later. Good luck!", topic)
}

var fillers = []string{
	"Thanks for that answer. Let's keep going: can you tell me about a %s problem you solved recently and how you approached it?",
	"Interesting. Building on that, what do you consider the most common pitfall in %s, and how do you avoid it?",
	"Good. Let's move on: how would you explain a core %s concept to a junior colleague?",
}

// Filler is the locally generated reply used when the dialogue backend could
// not be reached. n selects among the variants so repeated failures do not
// repeat the same sentence.
func Filler(topic string, n int) string {
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf(fillers[n%len(fillers)], topic)
}
