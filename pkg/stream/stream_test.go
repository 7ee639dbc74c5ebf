/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package stream_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/stream"
)

var _ = Describe("testing: stream.go", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("testing: NextBatch()", func() {
		It("should deliver batches in production order and then end", func() {
			s := stream.FromBatches(ctx,
				stream.Batch{{"id": "a"}},
				stream.Batch{{"id": "b"}, {"id": "c"}},
			)

			batch, ok, err := s.NextBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch).To(HaveLen(1))
			Expect(batch[0]["id"]).To(Equal("a"))

			batch, ok, err = s.NextBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(batch).To(HaveLen(2))

			_, ok, err = s.NextBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should surface the producer's error after the last batch", func() {
			s := stream.New(ctx, func(ctx context.Context, emit func(stream.Batch) error) error {
				if err := emit(stream.Batch{{"id": "a"}}); err != nil {
					return err
				}
				return errors.New("upstream broke")
			})

			_, ok, err := s.NextBatch(ctx)
			Expect(ok).To(BeTrue())
			Expect(err).NotTo(HaveOccurred())

			_, ok, err = s.NextBatch(ctx)
			Expect(ok).To(BeFalse())
			Expect(err).To(MatchError("upstream broke"))
		})
	})

	Context("testing: Close()", func() {
		It("should make a blocked producer observe ErrClosed", func() {
			observed := make(chan error, 1)
			s := stream.New(ctx, func(ctx context.Context, emit func(stream.Batch) error) error {
				for {
					if err := emit(stream.Batch{{"id": "x"}}); err != nil {
						observed <- err
						return err
					}
				}
			})

			_, ok, err := s.NextBatch(ctx)
			Expect(ok).To(BeTrue())
			Expect(err).NotTo(HaveOccurred())

			s.Close()
			Eventually(observed).Should(Receive(MatchError(stream.ErrClosed)))
		})
	})
})
