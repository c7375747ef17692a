// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package classify assigns a query type and a vector/graph weight split to
// query text using keyword and pattern cues.
//
// Classification is a pure function of the text: identical input always
// yields the identical Classification.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/graphrag/core"
)

// QueryType is one of the fixed query categories.
type QueryType string

const (
	Factual     QueryType = "factual"
	Relational  QueryType = "relational"
	MultiHop    QueryType = "multi-hop"
	Aggregation QueryType = "aggregation"
	Comparative QueryType = "comparative"
	Temporal    QueryType = "temporal"
)

// QueryTypes lists every type in tie-break order.
var QueryTypes = []QueryType{Factual, Relational, MultiHop, Aggregation, Comparative, Temporal}

// ParseQueryType parses a type name.
func ParseQueryType(s string) (QueryType, error) {
	for _, qt := range QueryTypes {
		if string(qt) == strings.ToLower(strings.TrimSpace(s)) {
			return qt, nil
		}
	}
	return "", fmt.Errorf("unknown query type %q", s)
}

// WeightTable maps each query type to its source weights.
type WeightTable map[QueryType]core.Weights

// DefaultWeights returns the built-in weight table.
func DefaultWeights() WeightTable {
	return WeightTable{
		Factual:     {Vector: 0.7, Graph: 0.3},
		Relational:  {Vector: 0.4, Graph: 0.6},
		MultiHop:    {Vector: 0.2, Graph: 0.8},
		Aggregation: {Vector: 0.6, Graph: 0.4},
		Comparative: {Vector: 0.5, Graph: 0.5},
		Temporal:    {Vector: 0.6, Graph: 0.4},
	}
}

// Classification is the outcome of classifying one query.
type Classification struct {
	Type         QueryType
	VectorWeight float64
	GraphWeight  float64
	// Ambiguous is set when no cue fired or the top types tied.
	Ambiguous bool
	// Cues lists the cues that fired, as "type:match".
	Cues []string
}

// Weights returns the classification's weight pair.
func (c Classification) Weights() core.Weights {
	return core.Weights{Vector: c.VectorWeight, Graph: c.GraphWeight}
}

type cue struct {
	qt      QueryType
	pattern *regexp.Regexp
}

var cues = []cue{
	{Factual, regexp.MustCompile(`\b(what (is|are)|define|definition of|describe|symptoms? of|signs? of|where (is|are|does|do))\b`)},
	{Aggregation, regexp.MustCompile(`\b(how many|list( all)?|all (the )?|every|count|number of|total|most common|top \d+|summari[sz]e|overview of)\b`)},
	{Comparative, regexp.MustCompile(`\b(compare[ds]?|comparison|versus|vs\.?|difference between|differ|better|worse|more effective|less effective|rather than|best|worst)\b`)},
	{Temporal, regexp.MustCompile(`\b(when|season(al)?|month|year|during|before|after|timing|early|late|kharif|rabi|monsoon|spring|summer|autumn|winter|since|until)\b`)},
	{MultiHop, regexp.MustCompile(`\b(which \w+ (that|which)|indirectly|chain|lead(s)? to|through which|in turn|connected via)\b`)},
}

// relationCue matches verbs that name a graph relation. Two or more in one
// query describe a chain of relations.
var relationCue = regexp.MustCompile(`\b(treat(s|ed|ment)?|control(s|led)?|cause[sd]?|affect(s|ed)?|prevent(s|ed)?|attack(s|ed)?|infect(s|ed)?|spread(s)?|grown in|grows? in|applied to|occur(s)? in|related to|relationship|linked to|associated with|used (for|against|on))\b`)

// Classifier assigns query types. A Classifier is safe for concurrent use.
type Classifier struct {
	weights WeightTable
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithWeights overrides entries of the weight table. Each pair is
// normalized to sum to 1.
func WithWeights(table WeightTable) Option {
	return func(c *Classifier) {
		for qt, w := range table {
			c.weights[qt] = w.Normalized()
		}
	}
}

// NewClassifier creates a Classifier with the default weight table.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WeightsFor returns the weights of a query type.
func (c *Classifier) WeightsFor(qt QueryType) core.Weights {
	return c.weights[qt]
}

// Classify scores every cue set against text and picks the top type.
func (c *Classifier) Classify(text string) Classification {
	lowered := strings.ToLower(strings.Join(strings.Fields(text), " "))

	scores := make(map[QueryType]int, len(QueryTypes))
	var fired []string
	for _, cu := range cues {
		for _, m := range cu.pattern.FindAllString(lowered, -1) {
			scores[cu.qt]++
			fired = append(fired, string(cu.qt)+":"+m)
		}
	}

	relations := relationCue.FindAllString(lowered, -1)
	for _, m := range relations {
		fired = append(fired, string(Relational)+":"+m)
	}
	switch {
	case len(relations) >= 2:
		scores[MultiHop] += len(relations)
	case len(relations) == 1:
		scores[Relational]++
	}

	best, bestScore, tied := Factual, 0, false
	for _, qt := range QueryTypes {
		s := scores[qt]
		switch {
		case s > bestScore:
			best, bestScore, tied = qt, s, false
		case s == bestScore && s > 0:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return Classification{
			Type:         Factual,
			VectorWeight: core.Balanced.Vector,
			GraphWeight:  core.Balanced.Graph,
			Ambiguous:    true,
			Cues:         fired,
		}
	}
	w := c.weights[best]
	return Classification{
		Type:         best,
		VectorWeight: w.Vector,
		GraphWeight:  w.Graph,
		Cues:         fired,
	}
}
