// Package squad loads SQuAD-formatted datasets into flat context and
// question sequences.
package squad

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ctxrank/internal/domain"
)

// ErrDatasetFormat is returned when a dataset cannot be read or does not
// have the SQuAD shape.
var ErrDatasetFormat = errors.New("invalid dataset")

// Pointer fields let us tell a missing key apart from an empty value.
type squadFile struct {
	Data *[]article `json:"data"`
}

type article struct {
	Paragraphs *[]paragraph `json:"paragraphs"`
}

type paragraph struct {
	Context *string `json:"context"`
	QAs     *[]qa   `json:"qas"`
}

type qa struct {
	Question *string `json:"question"`
}

// LoadData reads contexts and questions in a single pass so question
// context ids always line up with the context sequence.
func LoadData(path string) (*domain.Dataset, error) {
	return load(path, true)
}

// LoadContexts reads only the contexts.
func LoadContexts(path string) ([]string, error) {
	ds, err := load(path, false)
	if err != nil {
		return nil, err
	}
	return ds.Contexts, nil
}

// LoadQuestions reads only the questions.
func LoadQuestions(path string) ([]domain.Question, error) {
	ds, err := load(path, true)
	if err != nil {
		return nil, err
	}
	return ds.Questions, nil
}

func load(path string, withQuestions bool) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetFormat, err)
	}
	defer f.Close()

	return Parse(f, filepath.Base(path), withQuestions)
}

// Parse decodes a SQuAD document from r. Questions are nil unless
// withQuestions is set.
func Parse(r io.Reader, name string, withQuestions bool) (*domain.Dataset, error) {
	var file squadFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDatasetFormat, name, err)
	}
	if file.Data == nil {
		return nil, fmt.Errorf("%w: %s: missing \"data\"", ErrDatasetFormat, name)
	}

	ds := &domain.Dataset{Name: name}
	if withQuestions {
		ds.Questions = []domain.Question{}
	}

	for a, art := range *file.Data {
		if art.Paragraphs == nil {
			return nil, fmt.Errorf("%w: %s: article %d missing \"paragraphs\"", ErrDatasetFormat, name, a)
		}
		for p, par := range *art.Paragraphs {
			if par.Context == nil {
				return nil, fmt.Errorf("%w: %s: article %d paragraph %d missing \"context\"", ErrDatasetFormat, name, a, p)
			}
			id := len(ds.Contexts)
			ds.Contexts = append(ds.Contexts, *par.Context)

			if !withQuestions {
				continue
			}
			if par.QAs == nil {
				return nil, fmt.Errorf("%w: %s: article %d paragraph %d missing \"qas\"", ErrDatasetFormat, name, a, p)
			}
			for q, item := range *par.QAs {
				if item.Question == nil {
					return nil, fmt.Errorf("%w: %s: article %d paragraph %d qa %d missing \"question\"", ErrDatasetFormat, name, a, p, q)
				}
				ds.Questions = append(ds.Questions, domain.Question{
					Text:      *item.Question,
					ContextID: id,
				})
			}
		}
	}

	return ds, nil
}
