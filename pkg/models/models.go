package models

// Metadata accompanies every EDC response.
type Metadata struct {
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Timestamp Timestamp `json:"timestamp"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError is the error block inside Metadata.
type APIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Pagination describes the page a list response carries.
type Pagination struct {
	CurrentPage   int `json:"currentPage"`
	Size          int `json:"size"`
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
}

// Envelope is the list response wrapper. Pagination is nil when the service
// omits it.
type Envelope[T any] struct {
	Metadata   Metadata    `json:"metadata"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Data       []T         `json:"data"`
}

// Study is a clinical trial instance.
type Study struct {
	SponsorKey       string    `json:"sponsorKey"`
	StudyKey         string    `json:"studyKey" validate:"required"`
	StudyID          int       `json:"studyId"`
	StudyName        string    `json:"studyName"`
	StudyDescription string    `json:"studyDescription"`
	StudyType        string    `json:"studyType"`
	DateCreated      Timestamp `json:"dateCreated"`
	DateModified     Timestamp `json:"dateModified"`
}

// Site is a study location enrolling subjects.
type Site struct {
	StudyKey             string    `json:"studyKey"`
	SiteID               int       `json:"siteId" validate:"gte=0"`
	SiteName             string    `json:"siteName" validate:"required"`
	SiteEnrollmentStatus string    `json:"siteEnrollmentStatus"`
	DateCreated          Timestamp `json:"dateCreated"`
	DateModified         Timestamp `json:"dateModified"`
}

// Keyword is a label attached to subjects and records.
type Keyword struct {
	KeywordName string    `json:"keywordName"`
	KeywordKey  string    `json:"keywordKey"`
	KeywordID   int       `json:"keywordId"`
	DateAdded   Timestamp `json:"dateAdded"`
}

// Subject is an enrolled trial participant.
type Subject struct {
	StudyKey            string    `json:"studyKey"`
	SubjectID           int       `json:"subjectId"`
	SubjectOID          string    `json:"subjectOid"`
	SubjectKey          string    `json:"subjectKey" validate:"required"`
	SubjectStatus       string    `json:"subjectStatus"`
	SiteID              int       `json:"siteId"`
	SiteName            string    `json:"siteName"`
	Deleted             bool      `json:"deleted"`
	EnrollmentStartDate Timestamp `json:"enrollmentStartDate"`
	DateCreated         Timestamp `json:"dateCreated"`
	DateModified        Timestamp `json:"dateModified"`
	Keywords            []Keyword `json:"keywords"`
}

// Form is a data-entry template.
type Form struct {
	StudyKey            string    `json:"studyKey"`
	FormID              int       `json:"formId"`
	FormKey             string    `json:"formKey" validate:"required"`
	FormName            string    `json:"formName"`
	FormType            string    `json:"formType"`
	Revision            int       `json:"revision"`
	EmbeddedLog         bool      `json:"embeddedLog"`
	EnforceOwnership    bool      `json:"enforceOwnership"`
	UserAgreement       bool      `json:"userAgreement"`
	SubjectRecordReport bool      `json:"subjectRecordReport"`
	UnscheduledVisit    bool      `json:"unscheduledVisit"`
	OtherForms          bool      `json:"otherForms"`
	EPROForm            bool      `json:"eproForm"`
	AllowCopy           bool      `json:"allowCopy"`
	Disabled            bool      `json:"disabled"`
	DateCreated         Timestamp `json:"dateCreated"`
	DateModified        Timestamp `json:"dateModified"`
}

// Variable is a single declared field on a form. Required defaults to false
// when the service omits it.
type Variable struct {
	StudyKey     string    `json:"studyKey"`
	VariableID   int       `json:"variableId"`
	VariableType string    `json:"variableType"`
	VariableName string    `json:"variableName" validate:"required"`
	VariableOID  string    `json:"variableOid"`
	Label        string    `json:"label"`
	Sequence     int       `json:"sequence"`
	Revision     int       `json:"revision"`
	Required     bool      `json:"required"`
	Disabled     bool      `json:"disabled"`
	Deleted      bool      `json:"deleted"`
	Blinded      bool      `json:"blinded"`
	FormID       int       `json:"formId"`
	FormKey      string    `json:"formKey"`
	FormName     string    `json:"formName"`
	DateCreated  Timestamp `json:"dateCreated"`
	DateModified Timestamp `json:"dateModified"`
}

// Record is one submitted form instance.
type Record struct {
	StudyKey       string         `json:"studyKey"`
	IntervalID     int            `json:"intervalId"`
	FormID         int            `json:"formId"`
	FormKey        string         `json:"formKey"`
	SiteID         int            `json:"siteId"`
	RecordID       int            `json:"recordId"`
	RecordOID      string         `json:"recordOid"`
	RecordType     string         `json:"recordType"`
	RecordStatus   string         `json:"recordStatus"`
	Deleted        bool           `json:"deleted"`
	SubjectID      int            `json:"subjectId"`
	SubjectOID     string         `json:"subjectOid"`
	SubjectKey     string         `json:"subjectKey"`
	VisitID        int            `json:"visitId"`
	ParentRecordID int            `json:"parentRecordId"`
	Keywords       []Keyword      `json:"keywords"`
	RecordData     map[string]any `json:"recordData"`
	DateCreated    Timestamp      `json:"dateCreated"`
	DateModified   Timestamp      `json:"dateModified"`
}

// Job states reported by the job status resource.
const (
	JobCreated    = "created"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// Job is an asynchronous server-side write tracked by batch id.
type Job struct {
	JobID        string    `json:"jobId"`
	BatchID      string    `json:"batchId" validate:"required"`
	State        string    `json:"state" validate:"required"`
	DateCreated  Timestamp `json:"dateCreated"`
	DateStarted  Timestamp `json:"dateStarted"`
	DateFinished Timestamp `json:"dateFinished"`
	Progress     *int      `json:"progress,omitempty"`
	ResultURL    string    `json:"resultUrl,omitempty"`
	Error        string    `json:"error,omitempty"`
}
