package models

const (
	ContextSeparator = "\n---\n"
	PageSeparator    = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	QuestionBankSize = 50
)

const (
	fallbackEN = "I'm sorry, that information is not in the provided text."
	fallbackTH = "ขออภัยค่ะ ข้อมูลนี้ไม่ได้อยู่ในเนื้อหาที่ให้มา"
	errorEN    = "Sorry, an error occurred on the server."
	errorTH    = "ขออภัยค่ะ เกิดข้อผิดพลาดบนเซิร์ฟเวอร์"
)

var (
	AnswerPromptTemplate = `You are a patient teacher who knows this book well.
Answer the student's question using the CONTEXT excerpts from the book first. If the excerpts do not cover it, explain the idea from general knowledge, say plainly that the excerpts did not contain the specific details, and point to the closest related topic that does appear in the CONTEXT.
%s
CONTEXT:
%s
---
QUESTION:
%s

Reply with a JSON object only, with exactly these two string fields:
{
  "structured": "a detailed answer formatted as Markdown (## headings, **bold**, * lists)",
  "speech": "the same answer rewritten as one short natural spoken paragraph for text-to-speech"
}
`

	ThaiAnswerPromptTemplate = `คุณคือครูผู้เชี่ยวชาญหนังสือเล่มนี้
ตอบคำถามของนักเรียนโดยใช้เนื้อหาจากหนังสือ (CONTEXT) เป็นหลัก หากเนื้อหาไม่ครอบคลุม ให้อธิบายด้วยความรู้ทั่วไป บอกให้ชัดว่าเนื้อหาที่ให้มายังไม่มีรายละเอียดส่วนนี้ และแนะนำหัวข้อที่ใกล้เคียงที่สุดใน CONTEXT
ตอบเป็นภาษาไทยเท่านั้น

CONTEXT:
%s
---
QUESTION:
%s

ตอบกลับเป็น JSON เท่านั้น มีสองฟิลด์ที่เป็นข้อความ:
{
  "structured": "คำตอบแบบละเอียด จัดรูปแบบด้วย Markdown (## หัวข้อ, **ตัวหนา**, * รายการ)",
  "speech": "คำตอบเดียวกันในภาษาพูด ย่อหน้าเดียว สั้นและเป็นธรรมชาติ สำหรับอ่านออกเสียง"
}
`

	ChunkSummaryPromptTemplate = "Summarize the key events, people, and concepts in this section of the book. %s\n\n%s"

	ReducePromptTemplate = "Summarize the following collection of summaries into one cohesive text. %s\n\n%s"

	FinalSummaryPromptTemplate = "Provide a concise, 3-paragraph final summary of the following book text (which may itself be a summary of sections). %s\n\n%s"

	QuestionBankPromptTemplate = `You are an expert curriculum designer. The text below is a comprehensive summary of a book.
Generate a question bank of exactly %d multiple-choice questions based only on this text, covering a wide range of its topics.
Use this mix of difficulties: %d easy, %d medium and %d hard.
%s

Return a JSON array only. Every element must have exactly this structure:
{
  "question": "the question text",
  "options": ["option A", "option B", "option C", "option D"],
  "correctAnswerIndex": 2,
  "difficulty": "easy"
}

BOOK TEXT (SUMMARY):
%s
`
)

// FallbackAnswer is returned when no context could be retrieved for a question.
func FallbackAnswer(lang string) Answer {
	if IsThai(lang) {
		return Answer{Structured: fallbackTH, Speech: fallbackTH}
	}
	return Answer{Structured: fallbackEN, Speech: fallbackEN}
}

// ErrorAnswer is the generic user-facing message for a failed answer.
func ErrorAnswer(lang string) Answer {
	if IsThai(lang) {
		return Answer{Structured: errorTH, Speech: errorTH}
	}
	return Answer{Structured: errorEN, Speech: errorEN}
}
