package prompt

import (
	"strings"
)

const (
	ExampleLandingPage   = "landing page"
	ExampleBlogApp       = "blog app"
	ExampleQuizApp       = "quiz app"
	ExamplePomodoroTimer = "pomodoro timer"
	ExampleNone          = "none"
)

// Examples is the closed set the example-match stage chooses from.
var Examples = []string{
	ExampleLandingPage,
	ExampleBlogApp,
	ExampleQuizApp,
	ExamplePomodoroTimer,
}

// ParseExample normalizes a match reply to one of Examples or ExampleNone.
func ParseExample(reply string) string {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.TrimLeft(s, "-* ")
	s = strings.Trim(s, "\"'`.!")
	s = strings.TrimSpace(s)
	for _, ex := range Examples {
		if s == ex {
			return ex
		}
	}
	return ExampleNone
}

var exampleGuides = map[string]string{
	ExampleLandingPage: `The request is closest to a marketing landing page. Build it as a single scrolling page with a sticky header, a hero section with a headline, subheading and a primary call to action, a features grid of three to six cards with Lucide icons, a testimonials or social proof strip, a pricing or signup section and a footer. Use realistic placeholder copy, not lorem ipsum.`,
	ExampleBlogApp: `The request is closest to a blog app. Keep posts in component state seeded with three realistic sample posts (title, author, date, body). Show a list view with post cards and a detail view for the selected post, switch between them with state rather than a router, and include a form to add a new post with title and body validation.`,
	ExampleQuizApp: `The request is closest to a quiz app. Hard-code five to ten multiple choice questions. Show one question at a time with its answer options, lock the choice once selected and highlight correct and incorrect answers, keep a running score, and finish with a results screen that shows the score and a button to restart.`,
	ExamplePomodoroTimer: `The request is closest to a pomodoro timer. Implement 25 minute work and 5 minute break sessions with start, pause and reset controls, display the remaining time as MM:SS in a large font, switch session type automatically when a timer ends, and count completed pomodoros. Drive the countdown with useEffect and setInterval and clear the interval on cleanup.`,
}
