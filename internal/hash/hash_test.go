/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package hash

import (
	"math"
	"testing"
)

type settings struct {
	Rho, Mu float64
	Types   []string
	Extra   map[string]int
}

func TestFingerprint(t *testing.T) {
	a := settings{Rho: 1, Mu: 0.01, Types: []string{"CG"}, Extra: map[string]int{"b": 2, "a": 1}}
	b := settings{Rho: 1, Mu: 0.01, Types: []string{"CG"}, Extra: map[string]int{"a": 1, "b": 2}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("equal values gave different keys")
	}
	if Fingerprint(&a) != Fingerprint(&b) {
		t.Error("pointers to equal values gave different keys")
	}
	b.Mu = 0.02
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different values gave the same key")
	}
	if Fingerprint(1, 2) == Fingerprint(2, 1) {
		t.Error("argument order ignored")
	}
	if Fingerprint(math.NaN()) != Fingerprint(math.NaN()) {
		t.Error("NaN keys differ")
	}
	if len(Fingerprint()) != 32 {
		t.Errorf("key length %d", len(Fingerprint()))
	}
}
