package usecase

import (
	"time"

	"github.com/kirillkom/catalog-search/internal/core/domain"
)

type nopObserver struct{}

func (nopObserver) ObserveNormalization(string, bool)           {}
func (nopObserver) ObserveCache(bool)                           {}
func (nopObserver) ObserveRetrieval(domain.RetrievalStage, int) {}
func (nopObserver) ObserveRerank(string, time.Duration)         {}
func (nopObserver) ObserveSearch(time.Duration, int)            {}
