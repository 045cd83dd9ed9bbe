// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rf

import (
	"fmt"

	randomforest "github.com/malaschitz/randomForest"
)

// storedNode is a flattened tree branch. Children are referenced
// by their position in storedTree.Nodes (-1 = no child). Nodes are
// stored in pre-order so a child always follows its parent.
type storedNode struct {
	Attribute int       `json:"attribute"`
	Value     float64   `json:"value"`
	IsLeaf    bool      `json:"isLeaf"`
	LeafValue []float64 `json:"leafValue,omitempty"`
	Gini      float64   `json:"gini"`
	GiniGain  float64   `json:"giniGain"`
	Size      int       `json:"size"`
	Depth     int       `json:"depth"`
	Branch0   int       `json:"branch0"`
	Branch1   int       `json:"branch1"`
}

type storedTree struct {
	Nodes      []storedNode `json:"nodes"`
	Validation float64      `json:"validation"`
}

// storedForest is our own persistent form of randomforest.Forest.
// Unlike the library's JSON marshaling, it keeps full float64
// precision so a loaded forest votes exactly as the saved one.
type storedForest struct {
	Trees             []storedTree `json:"trees"`
	Features          int          `json:"features"`
	Classes           int          `json:"classes"`
	LeafSize          int          `json:"leafSize"`
	MFeatures         int          `json:"mFeatures"`
	NTrees            int          `json:"nTrees"`
	NSize             int          `json:"nSize"`
	MaxDepth          int          `json:"maxDepth"`
	FeatureImportance []float64    `json:"featureImportance,omitempty"`
}

func appendBranch(tree *storedTree, br *randomforest.Branch) int {
	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, storedNode{
		Attribute: br.Attribute,
		Value:     br.Value,
		IsLeaf:    br.IsLeaf,
		LeafValue: br.LeafValue,
		Gini:      br.Gini,
		GiniGain:  br.GiniGain,
		Size:      br.Size,
		Depth:     br.Depth,
		Branch0:   -1,
		Branch1:   -1,
	})
	if br.Branch0 != nil {
		child := appendBranch(tree, br.Branch0)
		tree.Nodes[idx].Branch0 = child
	}
	if br.Branch1 != nil {
		child := appendBranch(tree, br.Branch1)
		tree.Nodes[idx].Branch1 = child
	}
	return idx
}

func newStoredForest(forest *randomforest.Forest) storedForest {
	ans := storedForest{
		Trees:             make([]storedTree, len(forest.Trees)),
		Features:          forest.Features,
		Classes:           forest.Classes,
		LeafSize:          forest.LeafSize,
		MFeatures:         forest.MFeatures,
		NTrees:            forest.NTrees,
		NSize:             forest.NSize,
		MaxDepth:          forest.MaxDepth,
		FeatureImportance: forest.FeatureImportance,
	}
	for i := range forest.Trees {
		tree := storedTree{
			Nodes:      make([]storedNode, 0, 64),
			Validation: forest.Trees[i].Validation,
		}
		appendBranch(&tree, &forest.Trees[i].Root)
		ans.Trees[i] = tree
	}
	return ans
}

func restoreBranch(nodes []storedNode, idx int) (*randomforest.Branch, error) {
	if idx < 0 || idx >= len(nodes) {
		return nil, fmt.Errorf("invalid tree node reference %d", idx)
	}
	node := nodes[idx]
	br := &randomforest.Branch{
		Attribute: node.Attribute,
		Value:     node.Value,
		IsLeaf:    node.IsLeaf,
		LeafValue: node.LeafValue,
		Gini:      node.Gini,
		GiniGain:  node.GiniGain,
		Size:      node.Size,
		Depth:     node.Depth,
	}
	if node.IsLeaf {
		return br, nil
	}
	if node.Branch0 <= idx || node.Branch1 <= idx {
		return nil, fmt.Errorf("tree node %d has missing or cyclic children", idx)
	}
	var err error
	if br.Branch0, err = restoreBranch(nodes, node.Branch0); err != nil {
		return nil, err
	}
	if br.Branch1, err = restoreBranch(nodes, node.Branch1); err != nil {
		return nil, err
	}
	return br, nil
}

// toForest rebuilds a forest usable for voting (training data
// are not stored).
func (sf storedForest) toForest() (*randomforest.Forest, error) {
	if sf.NTrees != len(sf.Trees) {
		return nil, fmt.Errorf("forest declares %d trees but contains %d", sf.NTrees, len(sf.Trees))
	}
	if sf.Classes < 2 {
		return nil, fmt.Errorf("invalid number of classes: %d", sf.Classes)
	}
	ans := &randomforest.Forest{
		Trees:             make([]randomforest.Tree, len(sf.Trees)),
		Features:          sf.Features,
		Classes:           sf.Classes,
		LeafSize:          sf.LeafSize,
		MFeatures:         sf.MFeatures,
		NTrees:            sf.NTrees,
		NSize:             sf.NSize,
		MaxDepth:          sf.MaxDepth,
		FeatureImportance: sf.FeatureImportance,
	}
	for i, tree := range sf.Trees {
		root, err := restoreBranch(tree.Nodes, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to restore tree %d: %w", i, err)
		}
		ans.Trees[i] = randomforest.Tree{Root: *root, Validation: tree.Validation}
	}
	return ans, nil
}
