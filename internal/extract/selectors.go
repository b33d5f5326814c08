package extract

// Selector tables for the guest (logged-out) page variants. Order matters:
// the index of the selector that matched is recorded in the record as the
// extraction method, and -1 marks the largest-block fallback.

var descriptionSelectors = []string{
	"div.show-more-less-html__markup",
	"div.description__text",
	"section.show-more-less-html",
	"article.jobs-description",
	"div.jobs-description__content",
	"div.core-section-container__content",
}

var insightSelectors = []string{
	"div.job-details-jobs-unified-top-card__job-insight",
	"div.jobs-unified-top-card__job-insight",
	"ul.job-details-jobs-unified-top-card__job-insight",
	"div.top-card-layout__entity-info",
	"section.top-card-layout",
}

var salarySelectors = []string{
	"div.salary-main-rail__data-body",
	"span.top-card-layout__salary-info",
	"div.compensation__salary",
	"div.job-details-jobs-unified-top-card__job-insight--highlight",
}

var applicantSelectors = []string{
	"span.num-applicants__caption",
	"span.topcard__flavor--metadata",
	"figcaption.num-applicants__caption",
}

var easyApplySelectors = []string{
	"span.easy-apply-badge",
	"button.jobs-apply-button--top-card",
	"span.topcard__flavor--easy-apply",
}

var postedBySelectors = []string{
	"div.message-the-recruiter",
	"div.hirer-card__hirer-information",
	"a.message-the-recruiter__cta",
}

var locationPanelSelectors = []string{
	"span.job-details-jobs-unified-top-card__primary-description-container",
	"span.topcard__flavor--bullet",
	"span.job-search-card__location",
}

var remoteLabelSelectors = []string{
	"span.job-details-jobs-unified-top-card__workplace-type",
	"span.topcard__flavor--workplace-type",
	"span.job-search-card__workplace-type",
}

var aboutSelectors = []string{
	"p.break-words.white-space-pre-wrap.mb5.text-body-small.t-black--light",
	"section.core-section-container",
	"p.break-words",
	"div.core-section-container__content",
	`section[data-test-id="about-us"]`,
}

// companyFieldLabels maps lowercased dt labels on company about pages to the
// frozen schema field they feed.
var companyFieldLabels = []struct {
	keyword string
	field   string
}{
	{"industry", "industry"},
	{"company size", "size"},
	{"headquarters", "headquarters"},
	{"type", "type"},
	{"specialties", "specialties"},
}

// jobJSONPatterns flag script bodies that embed job-related JSON worth
// capturing verbatim.
var jobJSONPatterns = []string{
	"jobPosting", "hiringOrganization", "employmentType",
	"jobLocation", "baseSalary", "validThrough",
}
