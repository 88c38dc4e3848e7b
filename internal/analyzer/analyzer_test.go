package analyzer

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func TestAnalyzer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Analyzer Suite")
}

var _ = Describe("pythonParser", func() {
	It("extracts a class, an inherits relation, and a contained method", func() {
		src := "class B:\n    def foo(self):\n        pass\n\nclass A(B):\n    pass\n"
		pf := newPythonParser("a.py").Parse("proj-1", src)

		var classNames []string
		for _, e := range pf.entities {
			if e.Kind == models.EntityClass {
				classNames = append(classNames, e.Name)
			}
		}
		Expect(classNames).To(ConsistOf("A", "B"))

		var inherits int
		for _, r := range pf.relations {
			if r.Kind == models.RelationInherits {
				inherits++
			}
		}
		Expect(inherits).To(Equal(1))
	})
})

var _ = Describe("jsTSParser", func() {
	It("extracts an exported interface and a function component", func() {
		src := `
export interface User {
	id: number;
}

export const Greeting: React.FC<{name: string}> = ({name}) => {
	return <div>{name}</div>;
};
`
		pf := newJSTSParser("Greeting.tsx").Parse("proj-1", src)

		var kinds []models.EntityKind
		for _, e := range pf.entities {
			kinds = append(kinds, e.Kind)
		}
		Expect(kinds).To(ContainElement(models.EntityInterface))
		Expect(kinds).To(ContainElement(models.EntityReactComponent))
	})

	It("never aborts on an unbalanced brace", func() {
		src := "export class Broken {\n  foo() {\n"
		Expect(func() { newJSTSParser("broken.ts").Parse("proj-1", src) }).NotTo(Panic())
	})
})

var _ = Describe("entityID", func() {
	It("is deterministic for identical inputs", func() {
		seenA := map[string]int{}
		seenB := map[string]int{}
		idA := entityID(seenA, "a.py", "class", "Foo", 3)
		idB := entityID(seenB, "a.py", "class", "Foo", 3)
		Expect(idA).To(Equal(idB))
		Expect(idA).To(HaveLen(16))
	})

	It("disambiguates a genuine collision with a suffix", func() {
		seen := map[string]int{}
		id1 := entityID(seen, "a.py", "class", "Foo", 3)
		seen[id1] = 0
		id2 := entityID(seen, "a.py", "class", "Foo", 3)
		Expect(id2).NotTo(Equal(id1))
	})
})

var _ = Describe("resolveCrossFile", func() {
	It("resolves an inherits relation to the matching class in another file", func() {
		b := &models.CodeEntity{EntityID: "b-id", Name: "B", QualifiedName: "b.py.B", FilePath: "b.py"}
		a := &models.CodeEntity{EntityID: "a-id", Name: "A", QualifiedName: "a.py.A", FilePath: "a.py"}
		rel := &models.CodeRelation{
			RelationID: "r1", SourceID: "a-id", TargetID: "B", Kind: models.RelationInherits,
			FilePath: &a.FilePath, Metadata: map[string]any{"resolved": false},
		}

		resolveCrossFile([]*models.CodeEntity{a, b}, []*models.CodeRelation{rel})

		Expect(rel.TargetID).To(Equal("b-id"))
		Expect(rel.Resolved()).To(BeTrue())
	})
})
