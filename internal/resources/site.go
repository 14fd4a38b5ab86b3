// Package resources holds the site-wide data rendered around the content:
// the person, social links and the copy of each page.
//
// A Site is loaded once at startup and treated as read-only afterwards.
package resources

type Site struct {
	BaseURL    string     `yaml:"baseURL"`
	Locale     string     `yaml:"locale"`
	Person     Person     `yaml:"person"`
	Newsletter Newsletter `yaml:"newsletter"`
	Social     []Social   `yaml:"social"`
	Home       Home       `yaml:"home"`
	About      About      `yaml:"about"`
	Blog       Page       `yaml:"blog"`
	Work       Page       `yaml:"work"`
}

type Person struct {
	FirstName string   `yaml:"firstName"`
	LastName  string   `yaml:"lastName"`
	Name      string   `yaml:"name"`
	Role      string   `yaml:"role"`
	Avatar    string   `yaml:"avatar"`
	Email     string   `yaml:"email"`
	Location  string   `yaml:"location"`
	Languages []string `yaml:"languages"`
}

type Newsletter struct {
	Display     bool   `yaml:"display"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Social struct {
	Name      string `yaml:"name"`
	Icon      string `yaml:"icon"`
	Link      string `yaml:"link"`
	Essential bool   `yaml:"essential"`
}

// Page is the routing and SEO copy shared by every page.
type Page struct {
	Path        string `yaml:"path"`
	Label       string `yaml:"label"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Image       string `yaml:"image,omitempty"`
}

type Home struct {
	Page     `yaml:",inline"`
	Headline string   `yaml:"headline"`
	Subline  string   `yaml:"subline"`
	Featured Featured `yaml:"featured"`
}

type Featured struct {
	Display bool   `yaml:"display"`
	Badge   string `yaml:"badge"`
	Title   string `yaml:"title"`
	Href    string `yaml:"href"`
}

type About struct {
	Page           `yaml:",inline"`
	TableOfContent bool      `yaml:"tableOfContent"`
	Avatar         bool      `yaml:"avatar"`
	Intro          Intro     `yaml:"intro"`
	Work           Work      `yaml:"work"`
	Studies        Studies   `yaml:"studies"`
	Technical      Technical `yaml:"technical"`
}

type Intro struct {
	Display     bool   `yaml:"display"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Work struct {
	Display     bool         `yaml:"display"`
	Title       string       `yaml:"title"`
	Experiences []Experience `yaml:"experiences"`
}

type Experience struct {
	Company      string   `yaml:"company"`
	Timeframe    string   `yaml:"timeframe"`
	Role         string   `yaml:"role"`
	Achievements []string `yaml:"achievements"`
	Images       []string `yaml:"images,omitempty"`
}

type Studies struct {
	Display      bool          `yaml:"display"`
	Title        string        `yaml:"title"`
	Institutions []Institution `yaml:"institutions"`
}

type Institution struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Technical struct {
	Display bool    `yaml:"display"`
	Title   string  `yaml:"title"`
	Skills  []Skill `yaml:"skills"`
}

type Skill struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Images      []string `yaml:"images,omitempty"`
}

// EssentialSocial returns the links shown in compact layouts.
func (s *Site) EssentialSocial() []Social {
	out := make([]Social, 0, len(s.Social))
	for _, l := range s.Social {
		if l.Essential {
			out = append(out, l)
		}
	}
	return out
}

// Pages returns the top-level pages in navigation order.
func (s *Site) Pages() []Page {
	return []Page{s.Home.Page, s.About.Page, s.Work, s.Blog}
}
