package handlers

import (
	"vocabcue/internal/experiment"
)

// StepView is one entry of the progress indicator as rendered
type StepView struct {
	Label   string
	Done    bool
	Current bool
}

// PageData is shared by every experiment page
type PageData struct {
	Title string
	Code  string
	Steps []StepView
}

type InvalidViewData struct {
	PageData
}

type ConsentViewData struct {
	PageData
	CSRFToken string
	Name      string
	Email     string
	Error     string
}

type InstructionsViewData struct {
	PageData
	Name     string
	StartURL string
	Rounds   int
}

type LandingViewData struct {
	PageData
	Round       int
	Phase       string
	Heading     string
	Description string
	PlayURL     string
}

type PlayViewData struct {
	PageData
	Round     int
	Phase     string
	Heading   string
	SocketURL string
}

type CompleteViewData struct {
	PageData
	Name  string
	Error string
}

type ErrorViewData struct {
	PageData
	Message  string
	RetryURL string
}

// newPageData builds the header data, deriving the step indicator from the path alone
func newPageData(title, code, path string) PageData {
	data := PageData{Title: title, Code: code}
	current, ok := experiment.StepFromPath(path)
	for _, step := range experiment.Steps {
		view := StepView{Label: step.Label}
		if ok {
			view.Done = step.Index < current.Index
			view.Current = step.Index == current.Index
		}
		data.Steps = append(data.Steps, view)
	}
	return data
}
