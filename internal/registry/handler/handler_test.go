package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"registry/internal/registry/custo"
	"registry/internal/registry/service"
	"registry/internal/registry/store/memory"
	httptransport "registry/internal/transport/http"
	"registry/pkg/testutil"
)

// =============================================================================
// HTTP Handler Test Suite
// =============================================================================
// Requests go through the full router (middleware included) into a real
// service over the in-memory store.

type HandlerSuite struct {
	suite.Suite
	service *service.Service
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(memory.New(), custo.Default(), service.WithLogger(logger))
	s.Require().NoError(err)
	s.service = svc
	s.router = httptransport.NewRouter(httptransport.Options{
		Logger:      logger,
		MaxBodySize: 4096,
		Health:      svc.Health,
	}, New(svc, logger))
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequest(method, target, body))
}

// expect checks the status and the JSON body; an empty body means none is expected.
func (s *HandlerSuite) expect(w *httptest.ResponseRecorder, status int, body string) {
	s.T().Helper()
	if body == "" {
		testutil.AssertNoBody(s.T(), w, status)
		return
	}
	s.Equal(status, w.Code, w.Body.String())
	s.JSONEq(body, w.Body.String())
}

func (s *HandlerSuite) seedReference(personID, identityID, body string) {
	s.T().Helper()
	s.expect(s.do(http.MethodPost, "/v1/persons/"+personID+"?transactionId=T", `{"status":"ACTIVE"}`), http.StatusCreated, "")
	s.expect(s.do(http.MethodPost, "/v1/persons/"+personID+"/identities/"+identityID+"?transactionId=T", body),
		http.StatusOK, `{"identityId":"`+identityID+`"}`)
	s.expect(s.do(http.MethodPut, "/v1/persons/"+personID+"/identities/"+identityID+"/status?status=VALID&transactionId=T", ""),
		http.StatusNoContent, "")
	s.expect(s.do(http.MethodPut, "/v1/persons/"+personID+"/identities/"+identityID+"/reference?transactionId=T", ""),
		http.StatusNoContent, "")
}

func (s *HandlerSuite) TestHealth() {
	s.expect(s.do(http.MethodGet, "/health", ""), http.StatusOK, `{"status":"ok"}`)
}

func (s *HandlerSuite) TestTransactionID() {
	s.Run("required on write operations", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/A001", `{}`),
			http.StatusBadRequest, `{"code":1,"message":"Missing transactionId"}`)
	})

	s.Run("optional on attribute reads", func() {
		s.expect(s.do(http.MethodGet, "/v1/persons/A001?attributeNames=firstName", ""), http.StatusNotFound, "")
	})
}

func (s *HandlerSuite) TestPersonLifecycle() {
	s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `{"status":"ACTIVE","physicalStatus":"ALIVE"}`),
		http.StatusCreated, "")

	s.Run("duplicate is a conflict", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `{}`),
			http.StatusConflict, `{"code":1,"message":"person [A001] already exists"}`)
	})

	s.Run("read with a transaction id returns the person", func() {
		s.expect(s.do(http.MethodGet, "/v1/persons/A001?transactionId=T", ""),
			http.StatusOK, `{"personId":"A001","status":"ACTIVE","physicalStatus":"ALIVE"}`)
	})

	s.Run("update then delete", func() {
		s.expect(s.do(http.MethodPut, "/v1/persons/A001?transactionId=T", `{"physicalStatus":"DEAD"}`), http.StatusNoContent, "")
		s.expect(s.do(http.MethodDelete, "/v1/persons/A001?transactionId=T", ""), http.StatusNoContent, "")
		s.expect(s.do(http.MethodGet, "/v1/persons/A001?transactionId=T", ""), http.StatusNotFound, "")
	})

	s.Run("uin creation without a generator fails", func() {
		w := s.do(http.MethodPost, "/v1/persons/uin?transactionId=T&gender=F", "")
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *HandlerSuite) TestReadAttributesOnceReferenceIsDefined() {
	s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `{}`), http.StatusCreated, "")
	s.expect(s.do(http.MethodPost, "/v1/persons/A001/identities/001?transactionId=T",
		`{"biographicData":{"firstName":"Jane","lastName":"Doe"}}`), http.StatusOK, `{"identityId":"001"}`)

	target := "/v1/persons/A001?attributeNames=firstName&attributeNames=lastName"
	s.expect(s.do(http.MethodGet, target, ""), http.StatusNotFound, "")

	s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/001/status?status=VALID&transactionId=T", ""), http.StatusNoContent, "")
	s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/001/reference?transactionId=T", ""), http.StatusNoContent, "")

	s.expect(s.do(http.MethodGet, target, ""), http.StatusOK, `{"firstName":"Jane","lastName":"Doe"}`)
}

func (s *HandlerSuite) TestIdentities() {
	s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `{}`), http.StatusCreated, "")

	s.Run("server assigned id", func() {
		w := s.do(http.MethodPost, "/v1/persons/A001/identities?transactionId=T", `{"biographicData":{"firstName":"Jane"}}`)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		resp := testutil.UnmarshalResponse[map[string]string](s.T(), w)
		s.Len(resp["identityId"], 32)
	})

	s.Run("schema violation is rejected", func() {
		w := s.do(http.MethodPost, "/v1/persons/A001/identities/bad?transactionId=T", `{"biographicData":{"gender":"X"}}`)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(400, testutil.UnmarshalResponse[testutil.ErrorBody](s.T(), w).Code)
	})

	s.Run("replace is forbidden once valid", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/A001/identities/002?transactionId=T", `{"biographicData":{"firstName":"Jane"}}`),
			http.StatusOK, `{"identityId":"002"}`)
		s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/002?transactionId=T", `{"biographicData":{"firstName":"Janet"}}`),
			http.StatusNoContent, "")
		s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/002/status?status=VALID&transactionId=T", ""),
			http.StatusNoContent, "")
		s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/002?transactionId=T", `{}`),
			http.StatusForbidden, `{"code":1,"message":"Illegal status of the identity - update is forbidden"}`)
	})

	s.Run("patch applies on any status", func() {
		s.expect(s.do(http.MethodPatch, "/v1/persons/A001/identities/002?transactionId=T", `{"biographicData":{"lastName":"Doe"}}`),
			http.StatusNoContent, "")
		w := s.do(http.MethodGet, "/v1/persons/A001/identities/002?transactionId=T", "")
		s.Require().Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), `"lastName":"Doe"`)
	})

	s.Run("invalid status", func() {
		s.expect(s.do(http.MethodPut, "/v1/persons/A001/identities/002/status?status=BOGUS&transactionId=T", ""),
			http.StatusBadRequest, `{"code":1,"message":"Invalid status [BOGUS]"}`)
	})

	s.Run("list and delete", func() {
		w := s.do(http.MethodGet, "/v1/persons/A001/identities?transactionId=T", "")
		s.Require().Equal(http.StatusOK, w.Code)
		var docs []map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &docs))
		s.Len(docs, 2)

		s.expect(s.do(http.MethodDelete, "/v1/persons/A001/identities/002?transactionId=T", ""), http.StatusNoContent, "")
		s.expect(s.do(http.MethodDelete, "/v1/persons/A001/identities/002?transactionId=T", ""), http.StatusNotFound, "")
	})
}

func (s *HandlerSuite) TestMergeAndMove() {
	s.seedReference("P1", "001", `{"biographicData":{"firstName":"Jane"}}`)
	s.seedReference("P2", "002", `{"biographicData":{"firstName":"Jane"}}`)
	s.expect(s.do(http.MethodPost, "/v1/persons/P3?transactionId=T", `{}`), http.StatusCreated, "")

	s.expect(s.do(http.MethodPost, "/v1/persons/P3/move/P2/identities/002?transactionId=T", ""), http.StatusNoContent, "")
	s.expect(s.do(http.MethodPost, "/v1/persons/P1/merge/P3?transactionId=T", ""), http.StatusNoContent, "")

	w := s.do(http.MethodGet, "/v1/persons/P1/identities?transactionId=T", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var docs []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &docs))
	s.Len(docs, 2)
	s.expect(s.do(http.MethodGet, "/v1/persons/P3?transactionId=T", ""), http.StatusNotFound, "")

	s.expect(s.do(http.MethodPost, "/v1/persons/P1/merge/P1?transactionId=T", ""), http.StatusBadRequest,
		`{"code":1,"message":"cannot merge a person into itself"}`)
}

func (s *HandlerSuite) TestQueries() {
	s.seedReference("P1", "001", `{"galleries":["G1"],"biographicData":{"firstName":"Jane","lastName":"Doe"}}`)
	s.seedReference("P2", "002", `{"biographicData":{"firstName":"John","lastName":"Doe"}}`)

	s.Run("find persons", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons?group=true&transactionId=T",
			`[{"attributeName":"lastName","operator":"=","value":"Doe"}]`),
			http.StatusOK, `[{"personId":"P1"},{"personId":"P2"}]`)
	})

	s.Run("find persons rejects bad flags", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons?group=maybe&transactionId=T", `[]`),
			http.StatusBadRequest, `{"code":1,"message":"invalid group [maybe]"}`)
		s.expect(s.do(http.MethodPost, "/v1/persons?limit=-1&transactionId=T", `[]`),
			http.StatusBadRequest, `{"code":1,"message":"invalid limit [-1]"}`)
	})

	s.Run("query person list", func() {
		s.expect(s.do(http.MethodGet, "/v1/persons?lastName=Doe", ""), http.StatusOK, `["P1","P2"]`)
		s.expect(s.do(http.MethodGet, "/v1/persons?firstName=John&names=lastName", ""), http.StatusOK, `[{"lastName":"Doe"}]`)
		s.expect(s.do(http.MethodGet, "/v1/persons?shoeSize=42", ""), http.StatusBadRequest,
			`{"code":2,"message":"Unknown name [shoeSize]"}`)
	})

	s.Run("verify", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/P1/verify",
			`[{"attributeName":"firstName","operator":"=","value":"Jane"}]`), http.StatusOK, `true`)
		s.expect(s.do(http.MethodPost, "/v1/persons/P2/verify",
			`[{"attributeName":"firstName","operator":"=","value":"Jane"}]`), http.StatusOK, `false`)
	})

	s.Run("match", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/P1/match", `{"firstName":"Jane","lastName":"Smith"}`),
			http.StatusOK, `[{"attributeName":"lastName","errorCode":1}]`)
		s.expect(s.do(http.MethodPost, "/v1/persons/P1/match", `{"firstName":"Jane"}`), http.StatusOK, `[]`)
	})

	s.Run("unknown attribute names are reported inline", func() {
		s.expect(s.do(http.MethodGet, "/v1/persons/P1?attributeNames=firstName&attributeNames=shoeSize", ""),
			http.StatusOK, `{"firstName":"Jane","shoeSize":{"code":2,"message":"Unknown attribute name [shoeSize]"}}`)
	})

	s.Run("galleries", func() {
		s.expect(s.do(http.MethodGet, "/v1/galleries?transactionId=T", ""), http.StatusOK, `["G1"]`)
		s.expect(s.do(http.MethodGet, "/v1/galleries/G1?transactionId=T", ""), http.StatusOK, `[{"personId":"P1","identityId":"001"}]`)
		s.expect(s.do(http.MethodGet, "/v1/galleries/NOPE?transactionId=T", ""), http.StatusNotFound, "")
	})
}

func (s *HandlerSuite) TestReadDocument() {
	s.seedReference("P1", "001", `{"biographicData":{"firstName":"Jane"},"documentData":[
		{"documentType":"ID_CARD","parts":[{"dataRef":"http://docs/front.jpg","mimeType":"image/jpeg"}]},
		{"documentType":"PASSPORT","parts":[{"data":"JVBERg==","mimeType":"application/pdf"}]}]}`)

	s.Run("single reference redirects", func() {
		w := s.do(http.MethodGet, "/v1/persons/P1/document?doctype=ID_CARD&format=jpeg", "")
		s.Equal(http.StatusFound, w.Code)
		s.Equal("http://docs/front.jpg", w.Header().Get("Location"))
	})

	s.Run("single inline part is the body", func() {
		w := s.do(http.MethodGet, "/v1/persons/P1/document?doctype=PASSPORT&format=pdf", "")
		s.Equal(http.StatusOK, w.Code)
		s.Equal("application/pdf", w.Header().Get("Content-Type"))
		s.Equal("%PDF", w.Body.String())
	})

	s.Run("secondary uin is not supported", func() {
		s.expect(s.do(http.MethodGet, "/v1/persons/P1/document?doctype=PASSPORT&format=pdf&secondaryUin=X", ""),
			http.StatusBadRequest, `{"code":3,"message":"readDocument: secondaryUin is not supported"}`)
	})
}

func (s *HandlerSuite) TestRequestBodies() {
	s.Run("malformed json", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `{"status":`),
			http.StatusBadRequest, `{"code":1,"message":"invalid JSON body"}`)
	})

	s.Run("array where an object is expected", func() {
		s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", `[]`),
			http.StatusBadRequest, `{"code":1,"message":"request body must be a JSON object"}`)
	})

	s.Run("oversized body", func() {
		big := `{"status":"` + strings.Repeat("x", 5000) + `"}`
		s.expect(s.do(http.MethodPost, "/v1/persons/A001?transactionId=T", big),
			http.StatusRequestEntityTooLarge, `{"code":1,"message":"request body too large"}`)
	})

	s.Run("unknown route", func() {
		s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v2/persons", "").Code)
	})
}

type failingService struct{ *service.Service }

func (failingService) ReadPerson(context.Context, string) (map[string]any, error) {
	return nil, errors.New("disk on fire")
}

func (s *HandlerSuite) TestUnexpectedErrorsAreOpaque() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := httptransport.NewRouter(httptransport.Options{Logger: logger}, New(failingService{s.service}, logger))

	w := testutil.DoRequest(router, testutil.NewRequest(http.MethodGet, "/v1/persons/A001?transactionId=T", ""))
	testutil.AssertError(s.T(), w, http.StatusInternalServerError, 0, "internal server error")
}
