// Package schema defines the frozen v1.0.0 raw record shapes. Every field is
// captured exactly as it appears on the page; nullable fields are pointers so
// absence serializes as JSON null. Any field addition or removal requires a
// new major schema version.
package schema

import "time"

// Version tags frozen into every record.
const (
	ScraperVersion   = "1.0.0"
	RawSchemaVersion = "1.0.0"
)

// Quality is the coarse extraction quality rating.
type Quality string

// Quality ratings, best to worst.
const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// ScrapeMetadata records the search context a record was produced under.
type ScrapeMetadata struct {
	SearchKeyword   string    `json:"search_keyword"`
	SearchLocation  string    `json:"search_location"`
	ScrapeTimestamp time.Time `json:"scrape_timestamp"`
	UserAgentUsed   string    `json:"user_agent_used"`
}

// JobIdentity carries the canonical job URL and its derived stable id.
type JobIdentity struct {
	JobIDRaw string `json:"job_id_raw"`
	JobURL   string `json:"job_url"`
}

// JobCardRaw holds the listing-card fields, unparsed.
type JobCardRaw struct {
	TitleRaw       *string `json:"title_raw"`
	CompanyRaw     *string `json:"company_raw"`
	LocationRaw    *string `json:"location_raw"`
	DatePostedRaw  *string `json:"date_posted_raw"`
	DatePostedAttr *string `json:"date_posted_attr"`
}

// JobPageRaw holds everything lifted from the job detail page, unparsed.
type JobPageRaw struct {
	JobDescriptionRawText    *string `json:"job_description_raw_text"`
	JobDescriptionRawHTML    *string `json:"job_description_raw_html"`
	DescriptionExtractMethod *int    `json:"description_extract_method"`

	JobInsightSectionRawText *string `json:"job_insight_section_raw_text"`
	JobInsightSectionRawHTML *string `json:"job_insight_section_raw_html"`

	SalaryRawText        *string `json:"salary_raw_text"`
	SalaryStatus         string  `json:"salary_status"`
	ApplicantCountRaw    *string `json:"applicant_count_raw"`
	ApplicantCountStatus string  `json:"applicant_count_status"`
	EasyApplyFlagRaw     *string `json:"easy_apply_flag_raw"`
	EasyApplyFlagStatus  string  `json:"easy_apply_flag_status"`
	RemoteLabelRaw       *string `json:"remote_label_raw"`
	RemoteLabelStatus    string  `json:"remote_label_status"`
	PostedByRaw          *string `json:"posted_by_raw"`
	PostedByStatus       string  `json:"posted_by_status"`

	LocationFromPanelRaw *string `json:"location_from_panel_raw"`

	EmploymentTypeRaw *string `json:"employment_type_raw"`
	SeniorityRaw      *string `json:"seniority_raw"`
	IndustryRaw       *string `json:"industry_raw"`
	JobFunctionRaw    *string `json:"job_function_raw"`

	EmbeddedJSONLD  *string `json:"embedded_json_ld"`
	EmbeddedJobJSON *string `json:"embedded_job_json"`
}

// CompanyInfo is the foreign reference from a job record to a company record.
type CompanyInfo struct {
	CompanyURL    *string `json:"company_url"`
	CompanyIDHash *string `json:"company_id_hash"`
}

// QualityTracking annotates a record with extraction completeness data.
type QualityTracking struct {
	ExtractionQuality Quality `json:"extraction_quality"`
	SelectorHits      int     `json:"selector_hits"`
	StatusCodeHistory []int   `json:"status_code_history"`
	RetryCount        int     `json:"retry_count"`
}

// JobHashing holds the content hashes used downstream for dedup.
type JobHashing struct {
	JobDescriptionContentHash *string `json:"job_description_content_hash"`
	JobPostIDHash             string  `json:"job_post_id_hash"`
}

// JobRecord is an immutable raw snapshot of one job listing. Re-scraping the
// same job produces a new record distinguished by timestamp and hash.
type JobRecord struct {
	ScraperVersion   string `json:"scraper_version"`
	RawSchemaVersion string `json:"raw_schema_version"`

	ScrapeMetadata  ScrapeMetadata  `json:"scrape_metadata"`
	JobIdentity     JobIdentity     `json:"job_identity"`
	JobCardRaw      JobCardRaw      `json:"job_card_raw"`
	JobPageRaw      JobPageRaw      `json:"job_page_raw"`
	CompanyInfo     CompanyInfo     `json:"company_info"`
	QualityTracking QualityTracking `json:"quality_tracking"`
	Hashing         JobHashing      `json:"hashing"`
}

// CompanyIdentity names a company and its stable id.
type CompanyIdentity struct {
	CompanyIDHash  string  `json:"company_id_hash"`
	CompanyNameRaw *string `json:"company_name_raw"`
	CompanyURL     string  `json:"company_url"`
}

// CompanyPageRaw holds the about-page fields, unparsed.
type CompanyPageRaw struct {
	CompanyAboutRawText    *string `json:"company_about_raw_text"`
	CompanyAboutRawHTML    *string `json:"company_about_raw_html"`
	CompanyIndustryRaw     *string `json:"company_industry_raw"`
	CompanySizeRaw         *string `json:"company_size_raw"`
	CompanyHeadquartersRaw *string `json:"company_headquarters_raw"`
	CompanyTypeRaw         *string `json:"company_type_raw"`
	CompanySpecialtiesRaw  *string `json:"company_specialties_raw"`
}

// CompanyHashing holds the company content hashes.
type CompanyHashing struct {
	CompanyContentHash *string `json:"company_content_hash"`
	CompanyURLHash     string  `json:"company_url_hash"`
}

// Timestamps tracks when a company was first and most recently encountered.
// LastSeen is the only field in the schema that may be updated after write,
// and only by append within a run; it never requires a re-fetch.
type Timestamps struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// CompanyRecord is an immutable raw snapshot of one company profile.
type CompanyRecord struct {
	ScraperVersion   string `json:"scraper_version"`
	RawSchemaVersion string `json:"raw_schema_version"`

	CompanyIdentity CompanyIdentity `json:"company_identity"`
	CompanyPageRaw  CompanyPageRaw  `json:"company_page_raw"`
	Hashing         CompanyHashing  `json:"hashing"`
	Timestamps      Timestamps      `json:"timestamps"`
	QualityTracking QualityTracking `json:"quality_tracking"`
}

// NewJobRecord returns a job record with the version tags stamped.
func NewJobRecord() JobRecord {
	return JobRecord{
		ScraperVersion:   ScraperVersion,
		RawSchemaVersion: RawSchemaVersion,
	}
}

// NewCompanyRecord returns a company record with the version tags stamped.
func NewCompanyRecord() CompanyRecord {
	return CompanyRecord{
		ScraperVersion:   ScraperVersion,
		RawSchemaVersion: RawSchemaVersion,
	}
}

// String returns a pointer to s, for populating nullable raw fields.
func String(s string) *string {
	return &s
}
