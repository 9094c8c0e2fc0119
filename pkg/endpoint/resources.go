package endpoint

import (
	"net/url"

	"github.com/Sternrassler/edc-client/pkg/client"
	"github.com/Sternrassler/edc-client/pkg/models"
)

// BasePath is the root of every EDC resource path.
const BasePath = "/api/v1/edc/studies"

// StudyPath returns a Path builder for a study sub-resource.
func StudyPath(segment string) func(studyKey string) string {
	return func(studyKey string) string {
		return BasePath + "/" + url.PathEscape(studyKey) + "/" + segment
	}
}

// Studies lists the studies visible to the credentials.
func Studies() Resource[models.Study] {
	return Resource[models.Study]{
		Name:    "studies",
		Path:    func(string) string { return BasePath },
		IDField: "studyKey",
	}
}

// Sites lists a study's sites.
func Sites() Resource[models.Site] {
	return Resource[models.Site]{
		Name:        "sites",
		Path:        StudyPath("sites"),
		IDField:     "siteId",
		StudyScoped: true,
	}
}

// Subjects lists a study's subjects. A missing study key is reported as a
// validation error rather than a configuration error.
func Subjects() Resource[models.Subject] {
	return Resource[models.Subject]{
		Name:        "subjects",
		Path:        StudyPath("subjects"),
		IDField:     "subjectKey",
		StudyScoped: true,
		MissingStudyKey: func(resource string) error {
			return client.NewError(client.KindValidation, "study key must be provided to list %s", resource)
		},
	}
}

// Forms lists a study's forms.
func Forms() Resource[models.Form] {
	return Resource[models.Form]{
		Name:        "forms",
		Path:        StudyPath("forms"),
		IDField:     "formId",
		StudyScoped: true,
		PageSize:    500,
	}
}

// Variables lists a study's variables.
func Variables() Resource[models.Variable] {
	return Resource[models.Variable]{
		Name:        "variables",
		Path:        StudyPath("variables"),
		IDField:     "variableId",
		StudyScoped: true,
		PageSize:    500,
	}
}

// Records lists a study's records.
func Records() Resource[models.Record] {
	return Resource[models.Record]{
		Name:        "records",
		Path:        StudyPath("records"),
		IDField:     "recordId",
		StudyScoped: true,
	}
}
