package browser

import (
	"sync"

	"github.com/maheshrc27/crosspost/internal/models"
)

type StepAction string

const (
	StepClick  StepAction = "click"
	StepFill   StepAction = "fill"
	StepUpload StepAction = "upload"
	StepWait   StepAction = "wait"
)

// Step is one compose interaction. Fill types the post text, Upload attaches
// the post media and is skipped when there is none.
type Step struct {
	Action   StepAction
	Selector string
	// Optional steps are skipped when their element is missing.
	Optional bool
}

// UIFlow describes how to drive one platform's web interface. Selectors are
// kept here since platforms change their DOM often.
type UIFlow struct {
	Platform models.Platform
	// CookieURL is where replayed cookies are scoped and loaded.
	CookieURL        string
	HomeURL          string
	LoginURL         string
	LoginURLPatterns []string
	LoggedInMarkers  []string
	ComposeURL       string
	Compose          []Step
	MaxTextLength    int
	RequiresMedia    bool
}

// Flows is the platform -> UIFlow table. Adding a platform is a Register call.
type Flows struct {
	mu    sync.RWMutex
	flows map[models.Platform]UIFlow
}

func NewFlows(flows ...UIFlow) *Flows {
	f := &Flows{flows: make(map[models.Platform]UIFlow, len(flows))}
	for _, flow := range flows {
		f.Register(flow)
	}
	return f
}

func (f *Flows) Register(flow UIFlow) {
	f.mu.Lock()
	f.flows[flow.Platform] = flow
	f.mu.Unlock()
}

func (f *Flows) Lookup(p models.Platform) (UIFlow, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	flow, ok := f.flows[p]
	return flow, ok
}

func DefaultFlows() *Flows {
	return NewFlows(xFlow, linkedInFlow, instagramFlow)
}

var xFlow = UIFlow{
	Platform:         models.PlatformX,
	CookieURL:        "https://x.com",
	HomeURL:          "https://x.com/home",
	LoginURL:         "https://x.com/i/flow/login",
	LoginURLPatterns: []string{"/login", "/i/flow/login", "/logout"},
	LoggedInMarkers: []string{
		`[data-testid="SideNav_NewTweet_Button"]`,
		`[data-testid="AppTabBar_Home_Link"]`,
	},
	ComposeURL: "https://x.com/compose/post",
	Compose: []Step{
		{Action: StepWait, Selector: `[data-testid="tweetTextarea_0"]`},
		{Action: StepClick, Selector: `[data-testid="tweetTextarea_0"]`},
		{Action: StepFill, Selector: `[data-testid="tweetTextarea_0"]`},
		{Action: StepUpload, Selector: `input[data-testid="fileInput"]`},
		{Action: StepClick, Selector: `[data-testid="tweetButton"]`},
		{Action: StepWait, Selector: `[data-testid="toast"]`, Optional: true},
	},
	MaxTextLength: 280,
}

var linkedInFlow = UIFlow{
	Platform:         models.PlatformLinkedIn,
	CookieURL:        "https://www.linkedin.com",
	HomeURL:          "https://www.linkedin.com/feed/",
	LoginURL:         "https://www.linkedin.com/login",
	LoginURLPatterns: []string{"/login", "/authwall", "/checkpoint", "/uas/"},
	LoggedInMarkers: []string{
		`.global-nav__me`,
		`.share-box-feed-entry__trigger`,
	},
	Compose: []Step{
		{Action: StepClick, Selector: `.share-box-feed-entry__trigger`},
		{Action: StepWait, Selector: `.ql-editor[contenteditable="true"]`},
		{Action: StepFill, Selector: `.ql-editor[contenteditable="true"]`},
		{Action: StepClick, Selector: `button[aria-label="Add media"]`, Optional: true},
		{Action: StepUpload, Selector: `input[type="file"]`},
		{Action: StepClick, Selector: `.share-box-footer__primary-btn`, Optional: true},
		{Action: StepClick, Selector: `.share-actions__primary-action`},
	},
	MaxTextLength: 3000,
}

var instagramFlow = UIFlow{
	Platform:         models.PlatformInstagram,
	CookieURL:        "https://www.instagram.com",
	HomeURL:          "https://www.instagram.com/",
	LoginURL:         "https://www.instagram.com/accounts/login/",
	LoginURLPatterns: []string{"/accounts/login", "/challenge"},
	LoggedInMarkers: []string{
		`svg[aria-label="New post"]`,
		`a[href="/direct/inbox/"]`,
	},
	Compose: []Step{
		{Action: StepClick, Selector: `svg[aria-label="New post"]`},
		{Action: StepUpload, Selector: `div[role="dialog"] input[type="file"]`},
		{Action: StepClick, Selector: `div[role="dialog"] div[role="button"][tabindex="0"]`},
		{Action: StepClick, Selector: `div[role="dialog"] div[role="button"][tabindex="0"]`},
		{Action: StepFill, Selector: `div[role="dialog"] div[aria-label="Write a caption..."]`},
		{Action: StepClick, Selector: `div[role="dialog"] div[role="button"][tabindex="0"]`},
		{Action: StepWait, Selector: `img[alt="Animated checkmark"]`, Optional: true},
	},
	MaxTextLength: 2200,
	RequiresMedia: true,
}
