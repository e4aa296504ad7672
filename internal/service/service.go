// Package service runs one conversion request: fetch the remote feed, parse
// it, convert it and serialize the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"calconv/internal/config"
	"calconv/internal/convert"
	"calconv/internal/ics"
	appLog "calconv/internal/log"
	"calconv/internal/metrics"
)

// Fetcher is the remote fetch capability.
type Fetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Service converts remote calendars with a fixed set of named converters.
// It holds no per-request state and may serve concurrent requests.
type Service struct {
	fetcher    Fetcher
	converters map[string]*convert.Converter
}

func New(fetcher Fetcher, converters map[string]*convert.Converter) *Service {
	return &Service{fetcher: fetcher, converters: converters}
}

// ConvertersFromConfig builds one converter per configured entry.
func ConvertersFromConfig(cfg *config.Config) map[string]*convert.Converter {
	out := make(map[string]*convert.Converter, len(cfg.Converters))
	for _, cc := range cfg.Converters {
		entries := make([]convert.Subject, 0, len(cc.Subjects))
		for _, s := range cc.Subjects {
			entries = append(entries, convert.Subject{Key: s.Key, Name: s.Name})
		}
		unknown := cc.UnknownSubject
		if unknown == "" {
			unknown = cfg.UnknownSubject
		}
		out[cc.Name] = convert.New(convert.NewDictionary(entries),
			convert.WithHeader(cfg.Calendar.Version, cfg.Calendar.ProductID),
			convert.WithUnknownSubject(unknown),
		)
	}
	return out
}

// Names lists the configured converter names, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.converters))
	for name := range s.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Convert fetches url and runs it through the named converter. Failures are
// returned as *Error.
func (s *Service) Convert(ctx context.Context, name, url string) (out string, err error) {
	start := time.Now()
	defer func() {
		label, result := name, "ok"
		if err != nil {
			result = KindOf(err).String()
			if KindOf(err) == KindConverterNotFound {
				// Keep label cardinality bounded by the configured names.
				label = "unknown"
			}
		}
		metrics.RecordConversion(label, result, time.Since(start))
	}()

	conv, ok := s.converters[name]
	if !ok {
		return "", &Error{Kind: KindConverterNotFound, Converter: name}
	}

	res, err := s.fetcher.FetchOne(ctx, ics.Source{ID: name, URL: url})
	if err != nil {
		return "", &Error{Kind: KindFetch, Converter: name, Err: err}
	}
	metrics.RecordFetch(name, res.FromCache)

	return s.convertBody(name, conv, res.Body)
}

// ConvertBody converts an already fetched payload.
func (s *Service) ConvertBody(name string, body []byte) (string, error) {
	conv, ok := s.converters[name]
	if !ok {
		return "", &Error{Kind: KindConverterNotFound, Converter: name}
	}
	return s.convertBody(name, conv, body)
}

func (s *Service) convertBody(name string, conv *convert.Converter, body []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", &Error{Kind: KindInternal, Converter: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	doc, err := ics.Parse(body)
	if err != nil {
		if errors.Is(err, ics.ErrNoCalendar) {
			return "", &Error{Kind: KindNoCalendar, Converter: name, Err: err}
		}
		return "", &Error{Kind: KindParse, Converter: name, Err: err}
	}

	out, err = conv.Convert(doc.Calendar, ics.NewWriter(doc))
	if err != nil {
		return "", &Error{Kind: KindConversion, Converter: name, Err: err}
	}

	appLog.Debug("calendar converted", "converter", name, "events", len(doc.Calendar.Events), "bytes", len(out))
	return out, nil
}
