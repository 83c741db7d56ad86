package waitlist

const (
	MessageWelcome          = "You're in 💗 Welcome to the Loppi Circle"
	MessageAlreadyJoined    = "You're already part of the Loppi Circle"
	MessageInvalidEmail     = "Invalid email address"
	MessageTooManyRequests  = "Too many requests. Please try again in a minute."
	MessageInternalError    = "Something went wrong. Please try again."
	MessageMethodNotAllowed = "Method not allowed"
)

// SubmitWaitlistRequest is the JSON body posted by the landing page form.
type SubmitWaitlistRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type SubmitCommand struct {
	Email            string
	Source           string
	ClientIdentifier string
}

type SubmitResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AlreadyExists bool   `json:"alreadyExists"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func welcomeResult() *SubmitResult {
	return &SubmitResult{Success: true, Message: MessageWelcome, AlreadyExists: false}
}

func alreadyJoinedResult() *SubmitResult {
	return &SubmitResult{Success: true, Message: MessageAlreadyJoined, AlreadyExists: true}
}
